package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/japi/internal/web/auth"
	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
)

// AuthConfig configures the authentication middleware.
type AuthConfig struct {
	Tokens *auth.TokenService
	// Required rejects requests without a token. Otherwise anonymous
	// requests pass through without a principal.
	Required bool
	// SkipPaths are never authenticated.
	SkipPaths []string
	Logger    *zap.Logger
}

// Auth reads an optional bearer token and stores its principal in the
// request context, where request.New picks it up. Invalid tokens are
// always rejected.
func Auth(tokens *auth.TokenService) Middleware {
	return AuthWithConfig(AuthConfig{Tokens: tokens})
}

// AuthWithConfig is Auth with a custom configuration.
func AuthWithConfig(config AuthConfig) Middleware {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range config.SkipPaths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				if config.Required {
					unauthorized(w, "Authorization required.")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, "The Authorization header must use the Bearer scheme.")
				return
			}

			principal, err := config.Tokens.Principal(strings.TrimSpace(token))
			if err != nil {
				config.Logger.Debug("rejected token",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				unauthorized(w, "The bearer token is invalid or expired.")
				return
			}

			ctx := request.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="japi"`)
	writeError(w, japi.Unauthorized(detail))
}
