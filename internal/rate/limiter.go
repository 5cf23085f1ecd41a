package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes a Limiter.
type Config struct {
	Prefix      string
	MaxAttempts int
	Window      time.Duration
	// PerIP adds a second counter keyed by client address.
	PerIP bool
}

// Limiter counts failed logins per username and optionally per client address. A nil
// *Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter. Non-positive limits fall back to 5 attempts per 15 minutes.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &Limiter{redis: client, config: cfg}
}

// Check returns ErrRateLimited when username or ip exhausted its budget.
func (l *Limiter) Check(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}
	for _, key := range l.keys(username, ip) {
		if err := l.checkCounter(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Fail records a failed attempt and reports ErrRateLimited when this failure spent
// the last attempt of the window.
func (l *Limiter) Fail(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}
	var limited bool
	for _, key := range l.keys(username, ip) {
		count, err := l.incrementWithTTL(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.keys(username, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failures recorded for username in the current window.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.userKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(max(count, 0)), nil
}

func (l *Limiter) keys(username, ip string) []string {
	keys := []string{l.userKey(username)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.config.Prefix+":throttle:ip:"+ip)
	}
	return keys
}

func (l *Limiter) userKey(username string) string {
	return l.config.Prefix + ":throttle:user:" + username
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
