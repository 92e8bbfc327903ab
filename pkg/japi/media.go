package japi

import (
	"mime"
	"net/http"
	"strings"
)

// MediaType is the JSON:API media type.
const MediaType = "application/vnd.api+json"

// CheckContentType verifies that a request body is sent as JSON:API. The
// media type must not carry parameters.
func CheckContentType(r *http.Request) *Error {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return UnsupportedMediaType("Content-Type must be " + MediaType)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != MediaType {
		return UnsupportedMediaType("Content-Type must be " + MediaType)
	}
	if len(params) > 0 {
		return UnsupportedMediaType("Content-Type must not include media type parameters")
	}
	return nil
}

// CheckAccept rejects requests whose Accept header names the JSON:API media
// type only with parameters. Headers which do not mention JSON:API at all
// are accepted.
func CheckAccept(r *http.Request) *Error {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return nil
	}

	found := false
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mediaType != MediaType {
			continue
		}
		found = true
		delete(params, "q")
		if len(params) == 0 {
			return nil
		}
	}
	if found {
		return NotAcceptable("Accept must include " + MediaType + " without media type parameters")
	}
	return nil
}
