package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter tracks failed verification attempts per session. Three
// strikes inside the window force escalation; the counter is reset only on a
// successful verification, making escalation terminal for the session.
type AttemptCounter struct {
	redis  redis.Cmdable
	window time.Duration
}

// NewAttemptCounter builds a counter with the given rolling window.
func NewAttemptCounter(client redis.Cmdable, window time.Duration) *AttemptCounter {
	if client == nil {
		panic("identity: redis client cannot be nil")
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &AttemptCounter{redis: client, window: window}
}

func attemptKey(sessionID string) string {
	return "verify:attempts:" + sessionID
}

// Record registers one failed attempt and returns the new count.
func (c *AttemptCounter) Record(ctx context.Context, sessionID string) (int, error) {
	key := attemptKey(sessionID)
	n, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("identity: record attempt: %w", err)
	}
	if n == 1 {
		if err := c.redis.Expire(ctx, key, c.window).Err(); err != nil {
			return 0, fmt.Errorf("identity: set attempt window: %w", err)
		}
	}
	return int(n), nil
}

// Count returns the current failed-attempt count for the session.
func (c *AttemptCounter) Count(ctx context.Context, sessionID string) (int, error) {
	val, err := c.redis.Get(ctx, attemptKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("identity: read attempts: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("identity: decode attempts: %w", err)
	}
	return n, nil
}

// Reset clears the counter after a successful verification.
func (c *AttemptCounter) Reset(ctx context.Context, sessionID string) error {
	if err := c.redis.Del(ctx, attemptKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("identity: reset attempts: %w", err)
	}
	return nil
}
