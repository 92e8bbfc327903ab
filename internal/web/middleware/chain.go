// Package middleware provides the HTTP middleware wrapped around the
// JSON:API handler: request ids, panic recovery, access logging,
// bearer-token authentication, rate limiting and CORS.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/conduit-lang/japi/pkg/japi"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain is an ordered list of middleware. The first middleware added is the
// outermost one and sees the request first.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use appends m to the chain. Nil middleware is ignored so optional
// middleware can be added unconditionally.
func (c *Chain) Use(m ...Middleware) *Chain {
	for _, mw := range m {
		if mw != nil {
			c.middlewares = append(c.middlewares, mw)
		}
	}
	return c
}

// Append returns a new chain with middlewares added, leaving c untouched.
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	next := &Chain{middlewares: make([]Middleware, len(c.middlewares), len(c.middlewares)+len(middlewares))}
	copy(next.middlewares, c.middlewares)
	return next.Use(middlewares...)
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int { return len(c.middlewares) }

// Then wraps handler with every middleware of the chain.
func (c *Chain) Then(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}
	return handler
}

// ThenFunc is Then for an http.HandlerFunc.
func (c *Chain) ThenFunc(fn http.HandlerFunc) http.Handler {
	return c.Then(fn)
}

// writeError renders a single JSON:API error. Middleware runs outside the
// API handler, so it renders its own error documents.
func writeError(w http.ResponseWriter, err *japi.Error) {
	doc := &japi.Document{
		JSONAPI: &japi.Object{Version: japi.Version},
		Errors:  japi.ErrorList{err},
	}
	data, marshalErr := json.Marshal(doc)
	if marshalErr != nil {
		http.Error(w, http.StatusText(err.Status), err.Status)
		return
	}
	w.Header().Set("Content-Type", japi.MediaType)
	w.WriteHeader(err.Status)
	_, _ = w.Write(data)
}
