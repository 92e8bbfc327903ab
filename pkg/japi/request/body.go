package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/conduit-lang/japi/pkg/japi"
)

// DefaultMaxBodySize limits JSON:API request bodies.
const DefaultMaxBodySize = 10 << 20 // 10MB

// BodyReader decodes JSON:API request bodies.
type BodyReader struct {
	maxBodySize int64
}

// NewBodyReader creates a reader with the default size limit.
func NewBodyReader() *BodyReader {
	return &BodyReader{maxBodySize: DefaultMaxBodySize}
}

// NewBodyReaderWithMaxSize creates a reader with a custom size limit.
func NewBodyReaderWithMaxSize(maxBytes int64) *BodyReader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return &BodyReader{maxBodySize: maxBytes}
}

// Read decodes the body into a generic JSON document. Numbers are kept as
// json.Number so integer attributes survive unchanged.
func (b *BodyReader) Read(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, b.maxBodySize)
	defer r.Body.Close()

	return Decode(r.Body)
}

// Decode reads a single JSON object from rd.
func Decode(rd io.Reader) (map[string]any, error) {
	decoder := json.NewDecoder(rd)
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, japi.InvalidDocument("The request body is empty.", "/")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, japi.NewError(http.StatusRequestEntityTooLarge, "The request body is too large.")
		}
		return nil, japi.InvalidDocument("The request body is not valid JSON: "+err.Error(), "/")
	}

	if decoder.More() {
		return nil, japi.InvalidDocument("The request body contains multiple JSON values.", "/")
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, japi.InvalidDocument("The request body must be a JSON object.", "/")
	}
	return obj, nil
}
