// Package api exposes the types of a schema.Registry as a JSON:API HTTP
// interface.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/encoder"
	"github.com/conduit-lang/japi/pkg/japi/includer"
	"github.com/conduit-lang/japi/pkg/japi/pagination"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
	"github.com/conduit-lang/japi/pkg/japi/validator"
)

// API serves the JSON:API endpoints of every registered type.
type API struct {
	registry  *schema.Registry
	validator *validator.Validator
	includer  *includer.Includer
	encoder   *encoder.Encoder
	body      *request.BodyReader
	logger    *zap.Logger

	baseURL         string
	prefix          string
	debug           bool
	defaultPageSize int
	maxPageSize     int
	meta            map[string]any
	settings        map[string]any
}

// Option configures an API.
type Option func(*API)

// WithBaseURL sets the absolute URL the endpoints are reachable at, e.g.
// https://example.org/api. Without it links are derived from each request.
func WithBaseURL(baseURL string) Option {
	return func(a *API) { a.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithPrefix sets the path prefix the API is mounted under, e.g. /api.
func WithPrefix(prefix string) Option {
	return func(a *API) { a.prefix = "/" + strings.Trim(prefix, "/") }
}

// WithLogger sets the logger for unexpected errors.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDebug exposes internal error messages in error documents.
func WithDebug(debug bool) Option {
	return func(a *API) { a.debug = debug }
}

// WithPageSizes sets the default and maximum page size of collections.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(a *API) {
		if defaultSize > 0 {
			a.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			a.maxPageSize = maxSize
		}
	}
}

// WithMeta sets the meta member of the top level jsonapi object.
func WithMeta(meta map[string]any) Option {
	return func(a *API) { a.meta = meta }
}

// WithSettings sets values copied into every request's Settings.
func WithSettings(settings map[string]any) Option {
	return func(a *API) { a.settings = settings }
}

// WithMaxBodySize limits request bodies.
func WithMaxBodySize(n int64) Option {
	return func(a *API) { a.body = request.NewBodyReaderWithMaxSize(n) }
}

// New creates the API for the types of registry.
func New(registry *schema.Registry, opts ...Option) *API {
	a := &API{
		registry:        registry,
		validator:       validator.New(registry),
		encoder:         encoder.New(registry),
		body:            request.NewBodyReader(),
		logger:          zap.NewNop(),
		defaultPageSize: pagination.DefaultLimit,
		maxPageSize:     100,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.prefix == "/" {
		a.prefix = ""
	}
	a.includer = includer.New(registry, a.logger)
	return a
}

// Registry returns the registry of the API.
func (a *API) Registry() *schema.Registry { return a.registry }

// Validator returns the document validator, e.g. to register custom rules.
func (a *API) Validator() *validator.Validator { return a.validator }

// Prefix returns the path prefix.
func (a *API) Prefix() string { return a.prefix }

// Handler returns the router serving every endpoint. The router expects the
// full request path, including the prefix.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.methodNotAllowed)

	mount := func(sub chi.Router) {
		for _, t := range a.registry.Types() {
			a.mountType(sub, t)
		}
	}

	if a.prefix == "" {
		mount(r)
	} else {
		r.Route(a.prefix, func(sub chi.Router) {
			sub.NotFound(a.notFound)
			sub.MethodNotAllowed(a.methodNotAllowed)
			mount(sub)
		})
	}
	return r
}

func (a *API) mountType(r chi.Router, t *schema.Type) {
	r.Route("/"+t.Name, func(r chi.Router) {
		r.Get("/", a.serve(t, OpGetCollection))
		r.Post("/", a.serve(t, OpCreateResource))
		r.Get("/{id}", a.serve(t, OpGetResource))
		r.Patch("/{id}", a.serve(t, OpUpdateResource))
		r.Delete("/{id}", a.serve(t, OpDeleteResource))
		r.Get("/{id}/relationships/{relname}", a.serve(t, OpGetRelationship))
		r.Patch("/{id}/relationships/{relname}", a.serve(t, OpUpdateRelationship))
		r.Post("/{id}/relationships/{relname}", a.serve(t, OpExtendRelationship))
		r.Delete("/{id}/relationships/{relname}", a.serve(t, OpRemoveRelationship))
		r.Get("/{id}/{relname}", a.serve(t, OpGetRelated))
	})
}

func (a *API) notFound(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, r, japi.NotFound("The endpoint "+r.URL.Path+" does not exist."))
}

func (a *API) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, r, japi.MethodNotAllowed("The method "+r.Method+" is not allowed for "+r.URL.Path+"."))
}

// requestBaseURL returns the configured base URL or derives it from r.
func (a *API) requestBaseURL(r *http.Request) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + a.prefix
}

func (a *API) jsonapiObject() *japi.Object {
	return &japi.Object{Version: japi.Version, Meta: a.meta}
}
