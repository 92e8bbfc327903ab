// Package ratelimit limits how many requests a client may send per window,
// in memory or shared through redis.
package ratelimit

import (
	"context"
	"time"
)

// RateLimiter decides whether the request identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*RateLimitInfo, error)
}

// RateLimitInfo is the state of a key after a call to Allow.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}
