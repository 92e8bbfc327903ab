package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/japi/pkg/japi/request"
)

// responsePrefix namespaces cached responses inside the cache.
const responsePrefix = "resp:"

// MiddlewareConfig configures the response cache.
type MiddlewareConfig struct {
	Cache Cache
	TTL   time.Duration
	// CacheControl is sent with every cacheable response when set.
	CacheControl string
	Logger       *zap.Logger
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	ETag        string `json:"etag"`
}

// Middleware caches successful GET responses per principal and answers
// If-None-Match with 304. Any successful write clears every cached
// response, since compound documents embed resources of other types.
func Middleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				serveCached(config, next, w, r)
			case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
				sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
				next.ServeHTTP(sw, r)
				if sw.status < http.StatusBadRequest {
					if err := config.Cache.DeletePrefix(r.Context(), responsePrefix); err != nil {
						config.Logger.Warn("failed to invalidate response cache", zap.Error(err))
					}
				}
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func serveCached(config MiddlewareConfig, next http.Handler, w http.ResponseWriter, r *http.Request) {
	key := ResponseKey(r)
	ctx := r.Context()

	if data, err := config.Cache.Get(ctx, key); err == nil {
		var cached cachedResponse
		if err := json.Unmarshal(data, &cached); err == nil {
			w.Header().Set("X-Cache", "HIT")
			writeCached(w, r, config, &cached)
			return
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		config.Logger.Warn("response cache read failed", zap.String("key", key), zap.Error(err))
	}

	rec := newRecorder()
	next.ServeHTTP(rec, r)

	for k, v := range rec.header {
		w.Header()[k] = v
	}
	if rec.status != http.StatusOK {
		w.WriteHeader(rec.status)
		_, _ = w.Write(rec.body.Bytes())
		return
	}

	cached := &cachedResponse{
		Status:      rec.status,
		ContentType: rec.header.Get("Content-Type"),
		Body:        rec.body.Bytes(),
		ETag:        GenerateETag(rec.body.Bytes()),
	}
	if data, err := json.Marshal(cached); err == nil {
		if err := config.Cache.Set(ctx, key, data, config.TTL); err != nil {
			config.Logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	w.Header().Set("X-Cache", "MISS")
	writeCached(w, r, config, cached)
}

func writeCached(w http.ResponseWriter, r *http.Request, config MiddlewareConfig, cached *cachedResponse) {
	h := w.Header()
	h.Set("ETag", cached.ETag)
	h.Add("Vary", "Authorization")
	if config.CacheControl != "" {
		h.Set("Cache-Control", config.CacheControl)
	}

	if MatchesETag(cached.ETag, ParseIfNoneMatch(r.Header.Get("If-None-Match"))) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if cached.ContentType != "" {
		h.Set("Content-Type", cached.ContentType)
	}
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

// ResponseKey derives the cache key of a GET request from its path, its
// sorted query, the Accept header and the principal.
func ResponseKey(r *http.Request) string {
	query := r.URL.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(r.URL.Path)
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString("\x00" + name + "=" + v)
		}
	}
	b.WriteString("\x00accept=" + r.Header.Get("Accept"))
	if p := request.PrincipalFrom(r.Context()); p != nil {
		b.WriteString("\x00principal=" + p.ID + "|" + strings.Join(p.Roles, ","))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return responsePrefix + hex.EncodeToString(hash[:16])
}

// recorder buffers a response so headers can still be added after the
// handler returns.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
	wrote  bool
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.body.Write(b)
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
