package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying the request id.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDConfig configures the request id middleware.
type RequestIDConfig struct {
	// HeaderName is read from the request and echoed in the response.
	HeaderName string
	// Generator creates ids for requests without one.
	Generator func() string
	// MaxLength bounds ids accepted from clients; longer ones are replaced.
	MaxLength int
}

// DefaultRequestIDConfig uses X-Request-ID and UUIDv4 ids.
func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{
		HeaderName: RequestIDHeader,
		Generator:  func() string { return uuid.NewString() },
		MaxLength:  128,
	}
}

// RequestID assigns every request an id, available via GetRequestID.
func RequestID() Middleware {
	return RequestIDWithConfig(DefaultRequestIDConfig())
}

// RequestIDWithConfig is RequestID with a custom configuration.
func RequestIDWithConfig(config RequestIDConfig) Middleware {
	if config.HeaderName == "" {
		config.HeaderName = RequestIDHeader
	}
	if config.Generator == nil {
		config.Generator = uuid.NewString
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(config.HeaderName)
			if id == "" || (config.MaxLength > 0 && len(id) > config.MaxLength) {
				id = config.Generator()
			}

			w.Header().Set(config.HeaderName, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
