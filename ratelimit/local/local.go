// Package local provides in-process generation throttle and attempt counter
// implementations backed by the ulule/limiter memory store.
//
// State lives in the current process only; use the Redis-backed defaults when
// several instances share users.
package local

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// counterLimit is large enough that a counter window is never "reached", so
// Limit - Remaining is the raw hit count.
const counterLimit = math.MaxInt64 / 2

func untilReset(c limiter.Context) time.Duration {
	d := time.Until(time.Unix(c.Reset, 0))
	if d <= 0 {
		// Reset has one-second resolution.
		return time.Second
	}
	return d
}

// Throttle is a single-slot flag per key. It satisfies goOTP.Throttle.
type Throttle struct {
	store limiter.Store
}

// NewThrottle returns a Throttle with its own memory store.
func NewThrottle() *Throttle {
	return &Throttle{store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "otg",
		CleanUpInterval: time.Minute,
	})}
}

// Acquire sets the flag for key for ttl when it is absent. Otherwise it
// reports the time until the flag clears.
func (t *Throttle) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	c, err := t.store.Get(ctx, key, limiter.Rate{Period: ttl, Limit: 1})
	if err != nil {
		return false, 0, fmt.Errorf("local throttle: %w", err)
	}
	if c.Reached {
		return false, untilReset(c), nil
	}
	return true, 0, nil
}

// Remaining returns the time until the flag for key clears, or 0 when unset.
func (t *Throttle) Remaining(ctx context.Context, key string) (time.Duration, error) {
	c, err := t.store.Peek(ctx, key, limiter.Rate{Period: time.Second, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("local throttle: %w", err)
	}
	if c.Remaining > 0 {
		return 0, nil
	}
	return untilReset(c), nil
}

// Counter is a fixed-window hit counter anchored at the first hit. It
// satisfies goOTP.AttemptCounter.
//
// mu serializes Reserve's peek-then-increment against every other mutation;
// the ulule store only makes single operations atomic.
type Counter struct {
	mu    sync.Mutex
	store limiter.Store
}

// NewCounter returns a Counter with its own memory store.
func NewCounter() *Counter {
	return &Counter{store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "otr",
		CleanUpInterval: time.Minute,
	})}
}

// Hit counts one hit and returns the total inside the window and the time
// until the window resets.
func (c *Counter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hit(ctx, key, window)
}

// Reserve counts one hit unless the window already holds limit hits. A
// refused reservation leaves the count unchanged.
func (c *Counter) Reserve(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, ttl, err := c.attempts(ctx, key)
	if err != nil {
		return false, 0, 0, err
	}
	if count >= limit {
		return false, count, ttl, nil
	}
	count, ttl, err = c.hit(ctx, key, window)
	if err != nil {
		return false, 0, 0, err
	}
	return true, count, ttl, nil
}

// Attempts returns the current count without recording a hit.
func (c *Counter) Attempts(ctx context.Context, key string) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts(ctx, key)
}

// Clear drops the window for key.
func (c *Counter) Clear(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.store.Reset(ctx, key, limiter.Rate{Period: time.Second, Limit: counterLimit}); err != nil {
		return fmt.Errorf("local counter: %w", err)
	}
	return nil
}

func (c *Counter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	lc, err := c.store.Get(ctx, key, limiter.Rate{Period: window, Limit: counterLimit})
	if err != nil {
		return 0, 0, fmt.Errorf("local counter: %w", err)
	}
	return lc.Limit - lc.Remaining, untilReset(lc), nil
}

func (c *Counter) attempts(ctx context.Context, key string) (int64, time.Duration, error) {
	lc, err := c.store.Peek(ctx, key, limiter.Rate{Period: time.Second, Limit: counterLimit})
	if err != nil {
		return 0, 0, fmt.Errorf("local counter: %w", err)
	}
	count := lc.Limit - lc.Remaining
	if count == 0 {
		return 0, 0, nil
	}
	return count, untilReset(lc), nil
}
