package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// response is what an operation produces.
type response struct {
	status   int
	doc      *japi.Document
	location string
}

type operationFunc func(req *request.Request, t *schema.Type, body map[string]any) (*response, error)

func (a *API) operation(op Operation) operationFunc {
	switch op {
	case OpGetCollection:
		return a.getCollection
	case OpCreateResource:
		return a.createResource
	case OpGetResource:
		return a.getResource
	case OpUpdateResource:
		return a.updateResource
	case OpDeleteResource:
		return a.deleteResource
	case OpGetRelationship:
		return a.getRelationship
	case OpUpdateRelationship:
		return a.updateRelationship
	case OpExtendRelationship:
		return a.extendRelationship
	case OpRemoveRelationship:
		return a.removeRelationship
	case OpGetRelated:
		return a.getRelated
	}
	return nil
}

// serve wraps an operation with content negotiation, request parsing and
// rendering.
func (a *API) serve(t *schema.Type, op Operation) http.HandlerFunc {
	fn := a.operation(op)

	return func(w http.ResponseWriter, r *http.Request) {
		if err := japi.CheckAccept(r); err != nil {
			a.writeError(w, r, err)
			return
		}

		var body map[string]any
		if op.hasBody() {
			if err := japi.CheckContentType(r); err != nil {
				a.writeError(w, r, err)
				return
			}
			doc, err := a.body.Read(w, r)
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			body = doc
		}

		req, err := request.New(r, a.requestBaseURL(r), a.copySettings())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		req.Vars["type"] = t.Name
		if id := chi.URLParam(r, "id"); id != "" {
			req.Vars["id"] = id
		}
		if rel := chi.URLParam(r, "relname"); rel != "" {
			req.Vars["relname"] = rel
		}

		if t.Handler() == nil {
			a.writeError(w, r, japi.NotImplemented("The type '"+t.Name+"' has no handler."))
			return
		}

		resp, err := fn(req, t, body)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if resp.location != "" {
			w.Header().Set("Location", resp.location)
		}
		a.writeDocument(w, resp.status, resp.doc)
	}
}

func (a *API) copySettings() map[string]any {
	settings := make(map[string]any, len(a.settings))
	for k, v := range a.settings {
		settings[k] = v
	}
	return settings
}

// writeDocument marshals the document before touching the response so a
// marshal failure can still be reported as a 500.
func (a *API) writeDocument(w http.ResponseWriter, status int, doc *japi.Document) {
	if doc == nil {
		w.WriteHeader(status)
		return
	}
	doc.JSONAPI = a.jsonapiObject()

	data, err := json.Marshal(doc)
	if err != nil {
		a.logger.Error("failed to marshal document", zap.Error(err))
		writeFallbackError(w)
		return
	}

	w.Header().Set("Content-Type", japi.MediaType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError renders err as an error document. Errors which are not
// JSON:API errors are logged and hidden behind a 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errs := japi.AsErrorList(err, a.debug)
	status := errs.Status()

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(w, r)),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	doc := &japi.Document{Errors: errs, JSONAPI: a.jsonapiObject()}
	data, marshalErr := json.Marshal(doc)
	if marshalErr != nil {
		writeFallbackError(w)
		return
	}

	w.Header().Set("Content-Type", japi.MediaType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeFallbackError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", japi.MediaType)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"errors":[{"status":"500","code":"internal_error","title":"Internal Server Error"}]}`))
}

func requestID(w http.ResponseWriter, r *http.Request) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
