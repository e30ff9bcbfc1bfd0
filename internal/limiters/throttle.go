package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrThrottleUnavailable = errors.New("generation throttle unavailable")

// acquireThrottleScript sets the throttle flag when absent.
// KEYS[1] = throttle key
// ARGV[1] = window in milliseconds
//
// Returns -1 when the flag was acquired, otherwise the remaining ttl in ms.
const acquireThrottleScript = `
if redis.call("SET", KEYS[1], "1", "PX", ARGV[1], "NX") then
  return -1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
  return -1
end
return ttl
`

var acquireThrottleLua = redis.NewScript(acquireThrottleScript)

// GenerationThrottle records that a code was recently issued for a key and
// rejects further issuance until the window lapses.
type GenerationThrottle struct {
	redis  redis.UniversalClient
	prefix string
}

// NewGenerationThrottle creates a Redis-backed [GenerationThrottle]. An empty
// prefix defaults to "otg:".
func NewGenerationThrottle(redisClient redis.UniversalClient, prefix string) *GenerationThrottle {
	if prefix == "" {
		prefix = "otg:"
	}
	return &GenerationThrottle{redis: redisClient, prefix: prefix}
}

// Acquire atomically sets the flag for key with the given ttl. When the flag is
// already present it returns false and the remaining ttl.
func (t *GenerationThrottle) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	if t == nil || t.redis == nil {
		return true, 0, nil
	}
	ms, err := acquireThrottleLua.Run(ctx, t.redis, []string{t.prefix + key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if ms < 0 {
		return true, 0, nil
	}
	return false, time.Duration(ms) * time.Millisecond, nil
}

// Remaining returns the ttl left on key, or zero when issuance is allowed.
func (t *GenerationThrottle) Remaining(ctx context.Context, key string) (time.Duration, error) {
	if t == nil || t.redis == nil {
		return 0, nil
	}
	ttl, err := t.redis.PTTL(ctx, t.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
