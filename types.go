package goOTP

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goOTP/internal/audit"
	internalflows "github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/record"
)

// Channel identifies the delivery medium a code is issued for.
type Channel = record.Channel

const (
	ChannelEmail = record.ChannelEmail
	ChannelSMS   = record.ChannelSMS
)

// Record is one issued code.
type Record = record.Record

// RecordStore persists issued codes. Consume must be a single atomic
// conditional update so a code verifies at most once.
//
//	Implementations: record.Store (Redis), store/postgres.Store, store/memory.Store.
type RecordStore interface {
	Insert(ctx context.Context, rec *record.Record) error
	Supersede(ctx context.Context, userID string, ch record.Channel, now time.Time) (int64, error)
	Consume(ctx context.Context, userID string, ch record.Channel, code string, now time.Time) (*record.Record, error)
	DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error)
	DeleteAllExpired(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, userID string, ch record.Channel) ([]*record.Record, error)
}

// Throttle is the generation throttle. Acquire must set the flag atomically
// when absent and otherwise report the time left.
type Throttle interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
	Remaining(ctx context.Context, key string) (time.Duration, error)
}

// AttemptCounter is a fixed-window counter anchored at the first hit.
type AttemptCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Reserve counts one hit unless the window already holds limit hits, as a
	// single atomic step. It returns whether the hit was counted, the count
	// after the call and the time until the window resets.
	Reserve(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error)
	Attempts(ctx context.Context, key string) (int64, time.Duration, error)
	Clear(ctx context.Context, key string) error
}

// Notification is what a [Notifier] delivers to the user.
type Notification struct {
	UserID           string
	Channel          record.Channel
	Code             string
	ExpiresAt        time.Time
	ExpiresInMinutes int
}

// Notifier delivers a code over its channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// IdentityProvider exposes the authenticated user of the current request.
// CurrentUserID returns "" when nobody is signed in.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// SessionFlags stores the pending-second-factor marker of the current session.
type SessionFlags interface {
	SetPendingSecondFactor(ctx context.Context, pending bool) error
	PendingSecondFactor(ctx context.Context) (bool, error)
	RotateSessionID(ctx context.Context) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// CodeGenerator returns a random numeric code of the given length.
type CodeGenerator func(digits int) (string, error)

// FlowState is the second-factor state of a session.
type FlowState = internalflows.State

const (
	StateIdle        = internalflows.StateIdle
	StatePending     = internalflows.StatePending
	StateRateLimited = internalflows.StateRateLimited
	StateVerified    = internalflows.StateVerified
)

// SubmitResult describes the session after one code submission.
type SubmitResult = internalflows.SubmitResult

// AuditEvent is the canonical audit event model.
type AuditEvent = internalaudit.Event

// AuditSink receives emitted audit events.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a structured logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
