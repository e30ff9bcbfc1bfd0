package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultVerificationMaxAttempts = 5
	defaultVerificationWindow      = 30 * time.Second
)

var (
	ErrVerificationRateLimited = errors.New("otp verification rate limited")
	ErrVerificationUnavailable = errors.New("otp verification limiter unavailable")
)

// Counter is the fixed-window primitive a [VerificationLimiter] counts with.
// internal/rate.Counter satisfies it, as do in-process implementations.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Reserve(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error)
	Attempts(ctx context.Context, key string) (int64, time.Duration, error)
	Clear(ctx context.Context, key string) error
}

// VerificationConfig holds thresholds for [VerificationLimiter].
type VerificationConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// VerificationLimiter caps code submissions per user. Each submission reserves
// a slot before the code is checked and a success clears the count, so the
// count inside the window is the number of failed or in-flight submissions.
// The user is limited once it reaches MaxAttempts.
type VerificationLimiter struct {
	counter     Counter
	maxAttempts int64
	window      time.Duration
}

// NewVerificationLimiter creates a [VerificationLimiter]. Zero-value fields in
// cfg fall back to defaults (5 attempts / 30s).
func NewVerificationLimiter(counter Counter, cfg VerificationConfig) *VerificationLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultVerificationMaxAttempts
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultVerificationWindow
	}
	return &VerificationLimiter{counter: counter, maxAttempts: int64(max), window: window}
}

func (l *VerificationLimiter) key(userID string) string {
	return "verify_otp:" + userID
}

// Check returns [ErrVerificationRateLimited] and the time until the window
// resets when userID has exhausted the budget. It never counts an attempt.
func (l *VerificationLimiter) Check(ctx context.Context, userID string) (time.Duration, error) {
	if l == nil || l.counter == nil {
		return 0, nil
	}
	count, ttl, err := l.counter.Attempts(ctx, l.key(userID))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ttl, ErrVerificationRateLimited
	}
	return 0, nil
}

// Reserve claims one submission from userID's budget before the code is
// checked. When the budget is already spent it returns
// [ErrVerificationRateLimited] with the wait and counts nothing. Otherwise last
// reports whether this submission took the final slot, and retry is the time
// until the window resets.
func (l *VerificationLimiter) Reserve(ctx context.Context, userID string) (last bool, retry time.Duration, err error) {
	if l == nil || l.counter == nil {
		return false, 0, nil
	}
	ok, count, ttl, err := l.counter.Reserve(ctx, l.key(userID), l.maxAttempts, l.window)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !ok {
		return false, ttl, ErrVerificationRateLimited
	}
	if count >= l.maxAttempts {
		return true, ttl, nil
	}
	return false, 0, nil
}

// Reset clears the failure count for userID.
func (l *VerificationLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	if err := l.counter.Clear(ctx, l.key(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return nil
}

// MaxAttempts returns the configured budget.
func (l *VerificationLimiter) MaxAttempts() int {
	if l == nil {
		return 0
	}
	return int(l.maxAttempts)
}
