package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/japi/internal/web/auth"
	"github.com/conduit-lang/japi/internal/web/ratelimit"
	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, japi.MediaType, w.Header().Get("Content-Type"))
	var doc struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	return doc.Errors[0].Code
}

func TestChain_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	base := NewChain(mark("a")).Use(nil, mark("b"))
	extended := base.Append(mark("c"))
	assert.Equal(t, 2, base.Len())
	assert.Equal(t, 3, extended.Len())

	serve(extended.ThenFunc(okHandler), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "client-id")
	w = serve(h, r)
	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", w.Header().Get(RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	serve(h, r)
	assert.Len(t, seen, 36, "oversized ids are replaced by a uuid")

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	h := NewChain(RequestID(), RecoveryWithConfig(RecoveryConfig{Logger: zap.New(core), Debug: true})).Then(panicking)
	w := serve(h, httptest.NewRequest(http.MethodGet, "/posts", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "kaboom")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "panic recovered", entry.Message)
	assert.Equal(t, "/posts", entry.ContextMap()["path"])
	assert.NotEmpty(t, entry.ContextMap()["request_id"])
}

func TestRecovery_HidesPanicValue(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(errors.New("secret")) }))
	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})

	h := LoggingWithConfig(LoggingConfig{Logger: zap.New(core), SkipPaths: []string{"/healthz"}})

	serve(h(okHandler), httptest.NewRequest(http.MethodGet, "/posts?sort=title", nil))
	serve(h(notFound), httptest.NewRequest(http.MethodGet, "/posts/9", nil))
	serve(h(okHandler), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "GET", first["method"])
	assert.Equal(t, "sort=title", first["query"])
	assert.Equal(t, int64(200), first["status"])
	assert.Equal(t, int64(2), first["bytes"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(404), entries[1].ContextMap()["status"])
}

func TestAuth(t *testing.T) {
	tokens, err := auth.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour, "japi")
	require.NoError(t, err)
	token, err := tokens.Issue("u1", []string{"editor"})
	require.NoError(t, err)

	var principal *request.Principal
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = request.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		required bool
		header   string
		status   int
		user     string
	}{
		{"valid token", false, "Bearer " + token, http.StatusOK, "u1"},
		{"lowercase scheme", false, "bearer " + token, http.StatusOK, "u1"},
		{"anonymous", false, "", http.StatusOK, ""},
		{"anonymous when required", true, "", http.StatusUnauthorized, ""},
		{"basic scheme", false, "Basic dXNlcjpwdw==", http.StatusUnauthorized, ""},
		{"invalid token", false, "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal = nil
			h := AuthWithConfig(AuthConfig{Tokens: tokens, Required: tt.required})(capture)

			r := httptest.NewRequest(http.MethodGet, "/posts", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := serve(h, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "unauthorized", errorCode(t, w))
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
				return
			}
			if tt.user == "" {
				assert.Nil(t, principal)
				return
			}
			require.NotNil(t, principal)
			assert.Equal(t, tt.user, principal.ID)
			assert.True(t, principal.HasRole("editor"))
		})
	}
}

func TestAuth_SkipPaths(t *testing.T) {
	h := AuthWithConfig(AuthConfig{Required: true, SkipPaths: []string{"/healthz"}})(okHandler)
	w := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimit.RateLimitInfo, error) {
	return nil, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{Capacity: 2, RefillRate: time.Hour})
	defer limiter.Close()
	h := RateLimit(limiter)(okHandler)

	send := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/posts", nil)
		r.RemoteAddr = addr
		return serve(h, r)
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234").Code)
	w := send("10.0.0.1:1234")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = send("10.0.0.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too_many_requests", errorCode(t, w))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234").Code)
}

func TestRateLimit_LimiterFailure(t *testing.T) {
	open := RateLimitWithConfig(RateLimitConfig{Limiter: failingLimiter{}, FailOpen: true})(okHandler)
	assert.Equal(t, http.StatusOK, serve(open, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	closed := RateLimitWithConfig(RateLimitConfig{Limiter: failingLimiter{}})(okHandler)
	w := serve(closed, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPrincipalOrIPKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:4000"
	assert.Equal(t, "ip:192.0.2.1", PrincipalOrIPKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", PrincipalOrIPKey(r))

	r = r.WithContext(request.WithPrincipal(r.Context(), &request.Principal{ID: "u1"}))
	assert.Equal(t, "principal:u1", PrincipalOrIPKey(r))
}

func TestCORS(t *testing.T) {
	assert.Nil(t, CORS(DefaultCORSConfig()))

	h := CORS(DefaultCORSConfig("https://app.example.org", "*.example.com"))(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/posts", nil)
	r.Header.Set("Origin", "https://app.example.org")
	w := serve(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Location")

	r = httptest.NewRequest(http.MethodOptions, "/posts", nil)
	r.Header.Set("Origin", "https://api.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w = serve(h, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)

	r = httptest.NewRequest(http.MethodGet, "/posts", nil)
	r.Header.Set("Origin", "https://evil.test")
	w = serve(h, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
