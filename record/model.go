package record

import (
	"errors"
	"strings"
	"time"
)

// Channel identifies the delivery medium a code was issued for.
type Channel string

const (
	// ChannelEmail delivers codes by email.
	ChannelEmail Channel = "email"
	// ChannelSMS delivers codes by text message.
	ChannelSMS Channel = "sms"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelSMS}

var (
	// ErrNotFound is returned when no unconsumed record matches the submitted code.
	ErrNotFound = errors.New("otp record not found")
	// ErrExpired is returned when the only unconsumed matches have passed their expiry.
	ErrExpired = errors.New("otp record expired")
	// ErrInvalidChannel is returned for channels outside [Channels].
	ErrInvalidChannel = errors.New("invalid otp channel")
)

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS:
		return true
	default:
		return false
	}
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel normalizes s and returns the matching [Channel].
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrInvalidChannel
	}
	return c, nil
}

// Record is one issued code.
//
// A record is active while it is unconsumed and its expiry lies in the future.
// Superseded records have ExpiresAt forced to the supersede time.
type Record struct {
	ID      string
	UserID  string
	Code    string
	Channel Channel

	CreatedAt  time.Time
	ExpiresAt  time.Time
	VerifiedAt *time.Time
}

// Consumed reports whether the record has been successfully verified.
func (r *Record) Consumed() bool {
	return r.VerifiedAt != nil
}

// Active reports whether the record can still be consumed at now.
func (r *Record) Active(now time.Time) bool {
	return r.VerifiedAt == nil && r.ExpiresAt.After(now)
}

// Expired reports whether the record is unconsumed and past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return r.VerifiedAt == nil && !r.ExpiresAt.After(now)
}
