package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/conduit-lang/japi/pkg/japi"
)

// RecoveryConfig configures the recovery middleware.
type RecoveryConfig struct {
	Logger *zap.Logger
	// EnableStackTrace adds the stack of the panic to the log entry.
	EnableStackTrace bool
	// Debug exposes the panic value in the error document.
	Debug bool
}

// Recovery turns panics into a JSON:API 500 document.
func Recovery(logger *zap.Logger) Middleware {
	return RecoveryWithConfig(RecoveryConfig{Logger: logger, EnableStackTrace: true})
}

// RecoveryWithConfig is Recovery with a custom configuration.
func RecoveryWithConfig(config RecoveryConfig) Middleware {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Let the server abort the connection.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Any("panic", rec),
				}
				if config.EnableStackTrace {
					fields = append(fields, zap.ByteString("stack", debug.Stack()))
				}
				config.Logger.Error("panic recovered", fields...)

				jerr := japi.InternalServerError("")
				if config.Debug {
					jerr.Detail = fmt.Sprint(rec)
				}
				writeError(w, jerr)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
