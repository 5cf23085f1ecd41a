package rate

import "errors"

var (
	// ErrRateLimited is returned once the failure budget of a window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
