package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "chat:ratelimit:"

// RateLimiter is a fixed one-minute window counter kept in Redis
type RateLimiter struct {
	client *Client
	scope  string
	limit  int64
}

// NewRateLimiter creates a limiter for one scope (e.g. "login", "send")
func NewRateLimiter(client *Client, scope string, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		scope:  scope,
		limit:  int64(requestsPerMinute + burst),
	}
}

// Allow counts one request for key.
// Returns (allowed, remaining, resetTime, error)
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	fullKey := fmt.Sprintf("%s%s:%s", rateLimitPrefix, r.scope, key)
	windowEnd := time.Now().Truncate(time.Minute).Add(time.Minute)

	pipe := r.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, time.Minute)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	count := incrCmd.Val()
	remaining := int(r.limit - count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= r.limit, remaining, windowEnd, nil
}
