package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/japi/internal/blog"
	"github.com/conduit-lang/japi/internal/cli/config"
	"github.com/conduit-lang/japi/internal/web/auth"
	"github.com/conduit-lang/japi/internal/web/cache"
	"github.com/conduit-lang/japi/internal/web/middleware"
	"github.com/conduit-lang/japi/internal/web/ratelimit"
	"github.com/conduit-lang/japi/pkg/japi/api"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// stack is the assembled request pipeline and the resources it holds.
type stack struct {
	api     *api.API
	handler http.Handler
	closers []func(context.Context) error
}

func (s *stack) close(ctx context.Context) error {
	var first error
	for _, c := range s.closers {
		if err := c(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openDB(ctx context.Context, cfg *config.Config) (*blog.DB, error) {
	return blog.Open(ctx, blog.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
}

// newAPI registers the blog types. db may be unconnected when the API is
// only inspected.
func newAPI(cfg *config.Config, db *blog.DB, logger *zap.Logger) (*api.API, error) {
	registry := schema.NewRegistry()
	if err := blog.New(db).Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register types: %w", err)
	}

	opts := []api.Option{
		api.WithPrefix(cfg.API.BasePath),
		api.WithLogger(logger),
		api.WithDebug(cfg.API.Debug),
		api.WithPageSizes(cfg.API.DefaultPageSize, cfg.API.MaxPageSize),
		api.WithMaxBodySize(cfg.API.MaxBodySize),
		api.WithMeta(map[string]any{"version": Version}),
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, api.WithBaseURL(cfg.API.BaseURL))
	}
	return api.New(registry, opts...), nil
}

// buildStack wraps the API in the middleware chain:
// request id, recovery, access log, CORS, auth, rate limit, response cache.
func buildStack(ctx context.Context, cfg *config.Config, db *blog.DB, logger *zap.Logger) (*stack, error) {
	a, err := newAPI(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	st := &stack{api: a}

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.RecoveryWithConfig(middleware.RecoveryConfig{
			Logger:           logger,
			EnableStackTrace: cfg.API.Debug,
			Debug:            cfg.API.Debug,
		}),
		middleware.Logging(logger),
	)
	chain.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)))

	if cfg.Auth.Enabled() {
		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}
		chain.Use(middleware.AuthWithConfig(middleware.AuthConfig{
			Tokens:   tokens,
			Required: cfg.Auth.Required,
			Logger:   logger,
		}))
	}

	var redisClient *redis.Client
	var responses cache.Cache
	switch cfg.Cache.Backend {
	case "memory":
		responses = cache.NewMemoryCache(cache.Config{DefaultTTL: cfg.Cache.TTL, Prefix: cfg.Cache.Prefix})
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Config:   cache.Config{DefaultTTL: cfg.Cache.TTL, Prefix: cfg.Cache.Prefix},
		})
		if err != nil {
			return nil, err
		}
		redisClient = rc.Client()
		responses = rc
	}
	if responses != nil {
		st.closers = append(st.closers, func(context.Context) error { return responses.Close() })
	}

	if rl := cfg.Server.RateLimit; rl.Requests > 0 {
		limiter, err := newLimiter(rl, redisClient, cfg.Cache.Prefix)
		if err != nil {
			_ = st.close(ctx)
			return nil, err
		}
		if tb, ok := limiter.(*ratelimit.TokenBucket); ok {
			st.closers = append(st.closers, func(context.Context) error { return tb.Close() })
		}
		chain.Use(middleware.RateLimitWithConfig(middleware.RateLimitConfig{
			Limiter:  limiter,
			KeyFunc:  middleware.PrincipalOrIPKey,
			FailOpen: true,
			Logger:   logger,
		}))
	}

	if responses != nil {
		chain.Use(cache.Middleware(cache.MiddlewareConfig{
			Cache:  responses,
			TTL:    cfg.Cache.TTL,
			Logger: logger,
		}))
	}

	st.handler = chain.Then(a.Handler())
	return st, nil
}

// newLimiter shares the redis connection of the response cache when there
// is one, so limits hold across instances.
func newLimiter(cfg config.RateLimitConfig, client *redis.Client, prefix string) (ratelimit.RateLimiter, error) {
	if client != nil {
		return ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
			Client: client,
			Limit:  cfg.Requests,
			Window: cfg.Window,
			Prefix: prefix + "ratelimit:",
		})
	}
	return ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
		Capacity:        max(cfg.Requests, cfg.Burst),
		Rate:            cfg.Requests,
		RefillRate:      cfg.Window,
		CleanupInterval: 5 * time.Minute,
	}), nil
}
