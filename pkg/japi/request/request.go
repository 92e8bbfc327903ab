// Package request turns HTTP requests into the request context passed
// through the JSON:API pipeline.
package request

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID     string
	Roles  []string
	Claims map[string]any
}

// HasRole reports whether the principal was granted role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores the principal in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Request is the context of a single JSON:API request. It is handed to
// resource handlers and field getters/setters.
type Request struct {
	ctx context.Context

	Method    string
	URL       *url.URL
	Header    http.Header
	Params    *Params
	Principal *Principal
	// Settings carries application defined values, e.g. a database handle
	// for the current transaction.
	Settings map[string]any
	// BaseURL is the absolute prefix all resource links are built from.
	BaseURL string
	// Vars holds the URL arguments of the matched endpoint (type, id,
	// relname).
	Vars map[string]string
}

// New builds a request context from an HTTP request. Query parameters are
// parsed eagerly so malformed parameters fail before any handler runs.
func New(r *http.Request, baseURL string, settings map[string]any) (*Request, error) {
	params, err := Parse(r.URL.Query())
	if err != nil {
		return nil, err
	}

	if settings == nil {
		settings = make(map[string]any)
	}

	return &Request{
		ctx:       r.Context(),
		Method:    r.Method,
		URL:       r.URL,
		Header:    r.Header,
		Params:    params,
		Principal: PrincipalFrom(r.Context()),
		Settings:  settings,
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		Vars:      make(map[string]string),
	}, nil
}

// NewFromContext builds a request context without an HTTP request, for
// programmatic use of the pipeline.
func NewFromContext(ctx context.Context, params *Params, baseURL string) *Request {
	if params == nil {
		params = &Params{Fields: map[string][]string{}, Extra: url.Values{}}
	}
	return &Request{
		ctx:       ctx,
		Method:    http.MethodGet,
		URL:       &url.URL{Path: "/"},
		Header:    make(http.Header),
		Params:    params,
		Principal: PrincipalFrom(ctx),
		Settings:  make(map[string]any),
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		Vars:      make(map[string]string),
	}
}

// Context returns the request's context.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r using ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	return &clone
}

// Setting returns a settings value.
func (r *Request) Setting(key string) (any, bool) {
	v, ok := r.Settings[key]
	return v, ok
}

// Authenticated reports whether a principal is attached.
func (r *Request) Authenticated() bool {
	return r.Principal != nil
}

// AbsoluteURL returns the request URL with the scheme and host of BaseURL.
func (r *Request) AbsoluteURL() *url.URL {
	u := *r.URL
	if base, err := url.Parse(r.BaseURL); err == nil && base.Host != "" {
		u.Scheme = base.Scheme
		u.Host = base.Host
	}
	return &u
}
