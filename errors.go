package goOTP

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/goOTP/record"
)

var (
	// ErrThrottled is matched by every [ThrottledError].
	ErrThrottled = errors.New("please wait before requesting another code")
	// ErrDelivery is matched by every [DeliveryError].
	ErrDelivery = errors.New("failed to send verification code")
	// ErrExpired is returned when the submitted code exists but has expired or been superseded.
	ErrExpired = errors.New("verification code has expired")
	// ErrInvalid is returned when the submitted code matches no unconsumed record.
	ErrInvalid = errors.New("invalid verification code")
	// ErrRateLimited is matched by every [RateLimitedError].
	ErrRateLimited = errors.New("too many verification attempts")
	// ErrInvalidChannel is returned for channels other than email and sms.
	ErrInvalidChannel = record.ErrInvalidChannel
	// ErrInvalidUser is returned when the user identifier is empty.
	ErrInvalidUser = errors.New("user identifier required")
	// ErrNotAuthenticated is returned by flow operations when no user is signed in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoPendingVerification is returned by Submit and Resend when no second factor is pending.
	ErrNoPendingVerification = errors.New("no pending verification")
	// ErrEngineNotReady is returned when a required collaborator was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// ThrottledError is returned by Issue when a code was issued for the same
// (user, channel) within the throttle window.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry in %d seconds", ErrThrottled.Error(), e.SecondsRemaining())
}

func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}

// SecondsRemaining rounds RetryAfter up to whole seconds.
func (e *ThrottledError) SecondsRemaining() int {
	return ceilSeconds(e.RetryAfter)
}

// RateLimitedError is returned by Submit when the user exhausted the failed
// submission budget.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: try again in %d seconds", ErrRateLimited.Error(), e.SecondsRemaining())
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// SecondsRemaining rounds RetryAfter up to whole seconds.
func (e *RateLimitedError) SecondsRemaining() int {
	return ceilSeconds(e.RetryAfter)
}

// DeliveryError is returned by Issue when the notifier failed. The record was
// persisted and is carried for callers that want to retry delivery.
type DeliveryError struct {
	Record *record.Record
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return ErrDelivery.Error()
	}
	return ErrDelivery.Error() + ": " + e.Err.Error()
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// Kind is a machine-readable error classification.
type Kind uint8

const (
	KindNone Kind = iota
	KindThrottled
	KindDelivery
	KindExpired
	KindInvalid
	KindRateLimited
	KindNotAuthenticated
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindThrottled:
		return "throttled"
	case KindDelivery:
		return "delivery"
	case KindExpired:
		return "expired"
	case KindInvalid:
		return "invalid"
	case KindRateLimited:
		return "rate_limited"
	case KindNotAuthenticated:
		return "not_authenticated"
	default:
		return "internal"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrThrottled):
		return KindThrottled
	case errors.Is(err, ErrDelivery):
		return KindDelivery
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrNoPendingVerification):
		return KindNotAuthenticated
	default:
		return KindInternal
	}
}

// RetryAfter extracts the wait carried by throttled and rate-limited errors.
func RetryAfter(err error) (time.Duration, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te.RetryAfter, true
	}
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
