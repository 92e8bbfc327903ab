package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed window limiter shared by every server using the
// same redis database.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// RedisLimiterConfig configures a RedisLimiter.
type RedisLimiterConfig struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
	Prefix string
}

// NewRedisLimiter validates config and creates the limiter.
func NewRedisLimiter(config RedisLimiterConfig) (*RedisLimiter, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	if config.Prefix == "" {
		config.Prefix = "japi:ratelimit:"
	}
	return &RedisLimiter{
		client: config.Client,
		limit:  config.Limit,
		window: config.Window,
		prefix: config.Prefix,
	}, nil
}

// Allow counts the request in the current window of key.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*RateLimitInfo, error) {
	redisKey := r.prefix + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	ttl, err := r.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	// A key without expiry was just created, or lost its expiry.
	if ttl < 0 {
		if err := r.client.PExpire(ctx, redisKey, r.window).Err(); err != nil {
			return nil, fmt.Errorf("redis rate limit check failed: %w", err)
		}
		ttl = r.window
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitInfo{
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
		Allowed:   int(count) <= r.limit,
	}, nil
}

// Reset forgets the window of key.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
