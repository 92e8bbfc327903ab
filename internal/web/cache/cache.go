// Package cache stores rendered JSON:API responses in memory or redis and
// serves them with ETags until a write invalidates them.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a byte store with per-key expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value. A zero ttl uses the backend default, a negative
	// ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Config holds the settings shared by all backends.
type Config struct {
	DefaultTTL time.Duration
	// Prefix namespaces the keys of this process in a shared backend.
	Prefix string
}

// DefaultConfig caches for five minutes under "japi:".
func DefaultConfig() Config {
	return Config{DefaultTTL: 5 * time.Minute, Prefix: "japi:"}
}

func (c Config) ttl(ttl time.Duration) time.Duration {
	switch {
	case ttl == 0:
		return c.DefaultTTL
	case ttl < 0:
		return 0
	}
	return ttl
}
