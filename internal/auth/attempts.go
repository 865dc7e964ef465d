package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptTracker counts consecutive failed logins per username.
type AttemptTracker interface {
	// Locked reports whether username has reached the failure limit.
	Locked(ctx context.Context, username string) (bool, error)
	// RecordFailure counts one more failed login and returns the total.
	RecordFailure(ctx context.Context, username string) (int64, error)
	// Reset clears the count after a successful login.
	Reset(ctx context.Context, username string) error
}

const attemptKeyPrefix = "login_attempts:"

// RedisAttemptTracker keeps counters in Redis. The window starts at the
// first failure and is not extended by later ones.
type RedisAttemptTracker struct {
	client      redis.Cmdable
	maxAttempts int64
	window      time.Duration
}

var _ AttemptTracker = (*RedisAttemptTracker)(nil)

// NewRedisAttemptTracker creates a tracker locking after maxAttempts
// failures within window.
func NewRedisAttemptTracker(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisAttemptTracker {
	return &RedisAttemptTracker{client: client, maxAttempts: int64(maxAttempts), window: window}
}

func attemptKey(username string) string {
	return attemptKeyPrefix + username
}

func (t *RedisAttemptTracker) Locked(ctx context.Context, username string) (bool, error) {
	n, err := t.client.Get(ctx, attemptKey(username)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read login attempts: %w", err)
	}
	return n >= t.maxAttempts, nil
}

func (t *RedisAttemptTracker) RecordFailure(ctx context.Context, username string) (int64, error) {
	key := attemptKey(username)
	n, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count login attempt: %w", err)
	}
	if n == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			return n, fmt.Errorf("set login attempt window: %w", err)
		}
	}
	return n, nil
}

func (t *RedisAttemptTracker) Reset(ctx context.Context, username string) error {
	if err := t.client.Del(ctx, attemptKey(username)).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

// NoopAttemptTracker never locks anyone out. Used when Redis is not
// configured.
type NoopAttemptTracker struct{}

func (NoopAttemptTracker) Locked(context.Context, string) (bool, error)         { return false, nil }
func (NoopAttemptTracker) RecordFailure(context.Context, string) (int64, error) { return 0, nil }
func (NoopAttemptTracker) Reset(context.Context, string) error                  { return nil }
