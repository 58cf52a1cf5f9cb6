// Package ratelimit keeps fixed-window attempt counters in Redis so every
// API process sees the same count.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("rate limit store unavailable")

// incrScript increments and starts the window in one round trip so concurrent
// callers cannot both observe a stale count. A key left without a TTL is
// repaired on the next hit.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Limiter{redis: client, prefix: prefix}
}

// CheckAndIncrement counts one attempt for key. The first call of a window
// returns allowed; the (maxAttempts+1)-th call within the window does not.
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	count, err := incrScript.Run(ctx, l.redis, []string{l.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count <= int64(maxAttempts), nil
}

// Reset drops the counter for key, ending any active lockout early.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the current count for key, zero when no window is open.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}
