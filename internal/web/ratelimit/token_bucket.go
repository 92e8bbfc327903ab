package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is an in-memory limiter granting Rate requests per
// RefillRate to every key, refilled continuously, with bursts of up to
// Capacity.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	rate       int
	refillRate time.Duration
	now        func() time.Time

	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketConfig configures a TokenBucket.
type TokenBucketConfig struct {
	Capacity int
	// Rate is the number of tokens added per RefillRate. Zero means
	// Capacity.
	Rate       int
	RefillRate time.Duration
	// CleanupInterval drops idle buckets; zero disables the sweeper.
	CleanupInterval time.Duration
}

// DefaultTokenBucketConfig allows 100 requests per minute.
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{
		Capacity:        100,
		RefillRate:      time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewTokenBucket creates a token bucket limiter.
func NewTokenBucket(config TokenBucketConfig) *TokenBucket {
	if config.Capacity <= 0 {
		config.Capacity = DefaultTokenBucketConfig().Capacity
	}
	if config.RefillRate <= 0 {
		config.RefillRate = DefaultTokenBucketConfig().RefillRate
	}
	if config.Rate <= 0 || config.Rate > config.Capacity {
		config.Rate = config.Capacity
	}

	tb := &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   config.Capacity,
		rate:       config.Rate,
		refillRate: config.RefillRate,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		tb.cleanup = time.NewTicker(config.CleanupInterval)
		go tb.cleanupLoop()
	}
	return tb
}

// Allow takes one token from the bucket of key.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (*RateLimitInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.capacity), lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += float64(tb.rate) * elapsed.Seconds() / tb.refillRate.Seconds()
		if b.tokens > float64(tb.capacity) {
			b.tokens = float64(tb.capacity)
		}
		b.lastRefill = now
	}

	info := &RateLimitInfo{Limit: tb.capacity, ResetAt: now.Add(tb.untilToken(b.tokens))}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)
	return info, nil
}

// untilToken returns how long until the bucket holds a whole token.
func (tb *TokenBucket) untilToken(tokens float64) time.Duration {
	if tokens >= 1 {
		return 0
	}
	perToken := tb.refillRate / time.Duration(tb.rate)
	return time.Duration((1 - tokens) * float64(perToken))
}

func (tb *TokenBucket) cleanupLoop() {
	for {
		select {
		case <-tb.cleanup.C:
			tb.sweep()
		case <-tb.done:
			return
		}
	}
}

// sweep drops buckets idle for longer than two refill periods; they would
// be full again anyway.
func (tb *TokenBucket) sweep() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	threshold := 2 * tb.refillRate
	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > threshold {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the sweeper.
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() {
		close(tb.done)
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
	})
	return nil
}
