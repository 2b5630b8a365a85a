package rate

import "errors"

var (
	// ErrRateLimited is returned with a positive retry-after when a window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
