package japi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DataDog/jsonapi"
)

// Error is a JSON:API error object that also satisfies the error interface.
// Handlers and setters return it to control the HTTP status and the
// rendered error document.
type Error struct {
	Status          int
	ID              string
	Code            string
	Title           string
	Detail          string
	SourcePointer   string
	SourceParameter string
	Meta            map[string]any
}

// NewError creates an error with the given status and detail.
func NewError(status int, detail string) *Error {
	return &Error{Status: status, Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.title(), e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.title())
}

func (e *Error) title() string {
	if e.Title != "" {
		return e.Title
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return "Error"
}

// WithPointer sets source.pointer and returns the error for chaining.
func (e *Error) WithPointer(pointer string) *Error {
	e.SourcePointer = pointer
	return e
}

// WithParameter sets source.parameter and returns the error for chaining.
func (e *Error) WithParameter(param string) *Error {
	e.SourceParameter = param
	return e
}

// WithCode sets the application specific error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// ToJSONAPI converts the error into its wire representation.
func (e *Error) ToJSONAPI() *jsonapi.Error {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	out := &jsonapi.Error{
		ID:     e.ID,
		Status: &status,
		Code:   e.Code,
		Title:  e.title(),
		Detail: e.Detail,
	}
	if out.Code == "" {
		out.Code = CodeFromStatus(status)
	}
	if e.SourcePointer != "" || e.SourceParameter != "" {
		out.Source = &jsonapi.ErrorSource{
			Pointer:   e.SourcePointer,
			Parameter: e.SourceParameter,
		}
	}
	if len(e.Meta) > 0 {
		out.Meta = e.Meta
	}
	return out
}

// ErrorList collects several errors which are rendered in one document.
type ErrorList []*Error

// Add appends err unless it is nil.
func (l *ErrorList) Add(err *Error) {
	if err != nil {
		*l = append(*l, err)
	}
}

// Extend appends every error of other.
func (l *ErrorList) Extend(other ErrorList) {
	*l = append(*l, other...)
}

// Empty reports whether the list holds no errors.
func (l ErrorList) Empty() bool {
	return len(l) == 0
}

// Status is the HTTP status of the whole list. A single error keeps its own
// status, otherwise any client error turns the list into a 400 and only
// server errors produce a 500.
func (l ErrorList) Status() int {
	switch len(l) {
	case 0:
		return http.StatusInternalServerError
	case 1:
		return l[0].Status
	}
	for _, e := range l {
		if e.Status >= 400 && e.Status < 500 {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (l ErrorList) Error() string {
	msgs := make([]string, 0, len(l))
	for _, e := range l {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// ToJSONAPI converts every error into its wire representation.
func (l ErrorList) ToJSONAPI() []*jsonapi.Error {
	out := make([]*jsonapi.Error, 0, len(l))
	for _, e := range l {
		out = append(out, e.ToJSONAPI())
	}
	return out
}

// ErrOrNil returns the list as an error, or nil when it is empty.
func (l ErrorList) ErrOrNil() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// AsErrorList normalizes any error into an ErrorList. Errors which are not
// JSON:API errors become a single 500; their message is only exposed when
// debug is set.
func AsErrorList(err error, debug bool) ErrorList {
	if err == nil {
		return nil
	}

	var list ErrorList
	if errors.As(err, &list) {
		return list
	}

	var jerr *Error
	if errors.As(err, &jerr) {
		return ErrorList{jerr}
	}

	internal := InternalServerError("")
	if debug {
		internal.Detail = err.Error()
	}
	return ErrorList{internal}
}

// IsStatus reports whether err is a JSON:API error with the given status.
func IsStatus(err error, status int) bool {
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr.Status == status
	}
	return false
}

// CodeFromStatus maps HTTP status codes to snake_case error codes.
func CodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusNotAcceptable:
		return "not_acceptable"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGone:
		return "gone"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusNotImplemented:
		return "not_implemented"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}

// BadRequest is returned for malformed requests.
func BadRequest(detail string) *Error { return NewError(http.StatusBadRequest, detail) }

// Unauthorized is returned when authentication is missing or invalid.
func Unauthorized(detail string) *Error { return NewError(http.StatusUnauthorized, detail) }

// Forbidden is returned when the principal may not perform an operation.
func Forbidden(detail string) *Error { return NewError(http.StatusForbidden, detail) }

// NotFound is returned for unknown endpoints and types.
func NotFound(detail string) *Error { return NewError(http.StatusNotFound, detail) }

// MethodNotAllowed is returned when an endpoint does not support the method.
func MethodNotAllowed(detail string) *Error { return NewError(http.StatusMethodNotAllowed, detail) }

// NotAcceptable is returned when the Accept header rules out JSON:API.
func NotAcceptable(detail string) *Error { return NewError(http.StatusNotAcceptable, detail) }

// Conflict is returned when a document contradicts the endpoint.
func Conflict(detail string) *Error { return NewError(http.StatusConflict, detail) }

// Gone is returned for resources that existed once.
func Gone(detail string) *Error { return NewError(http.StatusGone, detail) }

// PreconditionFailed is returned when a conditional request fails.
func PreconditionFailed(detail string) *Error {
	return NewError(http.StatusPreconditionFailed, detail)
}

// UnsupportedMediaType is returned for request bodies that are not JSON:API.
func UnsupportedMediaType(detail string) *Error {
	return NewError(http.StatusUnsupportedMediaType, detail)
}

// UnprocessableEntity is returned when a value fails a validation rule.
func UnprocessableEntity(detail string) *Error {
	return NewError(http.StatusUnprocessableEntity, detail)
}

// TooManyRequests is returned by rate limited handlers.
func TooManyRequests(detail string) *Error { return NewError(http.StatusTooManyRequests, detail) }

// InternalServerError hides unexpected failures.
func InternalServerError(detail string) *Error {
	return NewError(http.StatusInternalServerError, detail)
}

// NotImplemented is returned for operations a type does not support.
func NotImplemented(detail string) *Error { return NewError(http.StatusNotImplemented, detail) }

// ServiceUnavailable is returned when a backend is down.
func ServiceUnavailable(detail string) *Error {
	return NewError(http.StatusServiceUnavailable, detail)
}

// InvalidDocument is returned when a request body violates the JSON:API
// document structure.
func InvalidDocument(detail, pointer string) *Error {
	e := BadRequest(detail).WithPointer(pointer).WithCode("invalid_document")
	e.Title = "InvalidDocument"
	return e
}

// UnresolvableIncludePath is returned for include paths that do not follow
// declared relationships.
func UnresolvableIncludePath(path string) *Error {
	e := BadRequest(fmt.Sprintf("The include path '%s' does not exist.", path)).
		WithParameter("include").
		WithCode("unresolvable_include_path")
	e.Title = "UnresolvableIncludePath"
	return e
}

// ReadOnlyField is returned when a write touches a read-only field.
func ReadOnlyField(typeName, field, pointer string) *Error {
	e := Forbidden(fmt.Sprintf("The field '%s.%s' is read only.", typeName, field)).
		WithPointer(pointer).
		WithCode("read_only_field")
	e.Title = "ReadOnlyField"
	return e
}

// UnsortableField is returned when sorting by an undeclared field.
func UnsortableField(typeName, field string) *Error {
	e := BadRequest(fmt.Sprintf("The field '%s.%s' can not be used for sorting.", typeName, field)).
		WithParameter("sort").
		WithCode("unsortable_field")
	e.Title = "UnsortableField"
	return e
}

// UnfilterableField is returned when filtering with an unsupported field or
// operator.
func UnfilterableField(typeName, field, op string) *Error {
	e := BadRequest(fmt.Sprintf("The field '%s.%s' does not support the filter '%s'.", typeName, field, op)).
		WithParameter(fmt.Sprintf("filter[%s]", field)).
		WithCode("unfilterable_field")
	e.Title = "UnfilterableField"
	return e
}

// RelationshipNotFound is returned for undeclared relationship names.
func RelationshipNotFound(typeName, rel string) *Error {
	e := NotFound(fmt.Sprintf("The type '%s' has no relationship '%s'.", typeName, rel)).
		WithCode("relationship_not_found")
	e.Title = "RelationshipNotFound"
	return e
}

// ResourceNotFound is returned when (type, id) does not exist.
func ResourceNotFound(typeName, id string) *Error {
	e := NotFound(fmt.Sprintf("The resource (type='%s', id='%s') does not exist.", typeName, id)).
		WithCode("resource_not_found")
	e.Title = "ResourceNotFound"
	return e
}

// EscapeJSONPointer escapes a single reference token per RFC 6901.
func EscapeJSONPointer(token string) string {
	// ~ first, otherwise the ~1 produced for / would be escaped again
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

// Pointer joins reference tokens into a JSON pointer.
func Pointer(tokens ...string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(EscapeJSONPointer(t))
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
