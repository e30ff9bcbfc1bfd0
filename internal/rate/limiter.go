package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "otr:"

// hitScript increments a counter and anchors its window on the first hit.
// KEYS[1] = counter key
// ARGV[1] = window in milliseconds
//
// Returns {count, pttl}.
const hitScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// reserveScript counts one attempt only while the counter is below the limit.
// KEYS[1] = counter key
// ARGV[1] = window in milliseconds
// ARGV[2] = limit
//
// Returns {reserved (0|1), count, pttl}.
const reserveScript = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[2]) then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = 0
  end
  return {0, count, ttl}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {1, count, ttl}
`

var reserveLua = redis.NewScript(reserveScript)

// Counter is a fixed-window attempt counter keyed by arbitrary strings.
type Counter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Counter] backed by the given Redis client. An empty prefix
// defaults to "otr:".
func New(redisClient redis.UniversalClient, prefix string) *Counter {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Counter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Hit records one attempt against key and returns the attempt count in the
// current window together with the time until the window resets.
func (c *Counter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	values, err := hitLua.Run(ctx, c.redis, []string{c.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected lua result", ErrRedisUnavailable)
	}
	return values[0], time.Duration(values[1]) * time.Millisecond, nil
}

// Reserve counts one attempt against key unless the count already reached
// limit. It returns whether the attempt was counted, the count after the call,
// and the time until the window resets. A refused reservation leaves the
// counter untouched.
func (c *Counter) Reserve(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error) {
	values, err := reserveLua.Run(ctx, c.redis, []string{c.prefix + key}, window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) != 3 {
		return false, 0, 0, fmt.Errorf("%w: unexpected lua result", ErrRedisUnavailable)
	}
	return values[0] == 1, values[1], time.Duration(values[2]) * time.Millisecond, nil
}

// Attempts returns the current count for key and the time until its window
// resets. Missing keys report zero.
func (c *Counter) Attempts(ctx context.Context, key string) (int64, time.Duration, error) {
	k := c.prefix + key

	pipe := c.redis.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, 0, nil
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// Clear deletes the counter for key.
func (c *Counter) Clear(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
