package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/japi/internal/web/ratelimit"
	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
)

// RateLimitKeyFunc extracts the rate limit key of a request. An empty key
// skips the limiter.
type RateLimitKeyFunc func(*http.Request) string

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	Limiter ratelimit.RateLimiter
	KeyFunc RateLimitKeyFunc
	// FailOpen lets requests through when the limiter itself fails.
	FailOpen bool
	Logger   *zap.Logger
}

// RateLimit limits requests per principal, falling back to the client IP.
func RateLimit(limiter ratelimit.RateLimiter) Middleware {
	return RateLimitWithConfig(RateLimitConfig{Limiter: limiter, KeyFunc: PrincipalOrIPKey, FailOpen: true})
}

// RateLimitWithConfig is RateLimit with a custom configuration.
func RateLimitWithConfig(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = PrincipalOrIPKey
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := config.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				config.Logger.Warn("rate limiter failed", zap.String("key", key), zap.Error(err))
				if config.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, japi.ServiceUnavailable("Rate limiting is unavailable."))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				retryAfter := int64(time.Until(info.ResetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				writeError(w, japi.TooManyRequests("Rate limit exceeded."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalOrIPKey keys authenticated requests by principal and anonymous
// ones by client IP. It must run after the auth middleware.
func PrincipalOrIPKey(r *http.Request) string {
	if p := request.PrincipalFrom(r.Context()); p != nil && p.ID != "" {
		return "principal:" + p.ID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For address, X-Real-IP, or the
// host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
