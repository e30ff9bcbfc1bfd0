package rate

import "errors"

var (
	// ErrRedisUnavailable wraps every Redis failure raised by [Counter].
	ErrRedisUnavailable = errors.New("redis unavailable")
)
