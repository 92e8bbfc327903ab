package japi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/DataDog/jsonapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorList_Status(t *testing.T) {
	tests := []struct {
		name     string
		errs     ErrorList
		expected int
	}{
		{"empty", nil, http.StatusInternalServerError},
		{"single keeps status", ErrorList{Conflict("x")}, http.StatusConflict},
		{"single server error", ErrorList{NotImplemented("x")}, http.StatusNotImplemented},
		{"client errors", ErrorList{Forbidden("a"), NotFound("b")}, http.StatusBadRequest},
		{"mixed", ErrorList{InternalServerError("a"), UnprocessableEntity("b")}, http.StatusBadRequest},
		{"server errors", ErrorList{InternalServerError("a"), ServiceUnavailable("b")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.errs.Status())
		})
	}
}

func TestErrorList_AddIgnoresNil(t *testing.T) {
	var errs ErrorList
	errs.Add(nil)
	assert.True(t, errs.Empty())
	assert.NoError(t, errs.ErrOrNil())

	errs.Add(BadRequest("bad"))
	errs.Extend(ErrorList{NotFound("missing")})
	assert.Len(t, errs, 2)
	assert.Error(t, errs.ErrOrNil())
	assert.Contains(t, errs.Error(), "bad")
	assert.Contains(t, errs.Error(), "missing")
}

func TestError_ToJSONAPI(t *testing.T) {
	e := UnprocessableEntity("title is too long").WithPointer("/data/attributes/title")
	e.Meta = map[string]any{"max": 200}

	out := e.ToJSONAPI()
	require.NotNil(t, out.Status)
	assert.Equal(t, http.StatusUnprocessableEntity, *out.Status)
	assert.Equal(t, "unprocessable_entity", out.Code)
	assert.Equal(t, "Unprocessable Entity", out.Title)
	assert.Equal(t, "title is too long", out.Detail)
	require.NotNil(t, out.Source)
	assert.Equal(t, "/data/attributes/title", out.Source.Pointer)
	assert.Equal(t, map[string]any{"max": 200}, out.Meta)
}

func TestError_ToJSONAPI_DefaultsStatus(t *testing.T) {
	out := (&Error{}).ToJSONAPI()
	require.NotNil(t, out.Status)
	assert.Equal(t, http.StatusInternalServerError, *out.Status)
	assert.Equal(t, "internal_error", out.Code)
	assert.Nil(t, out.Source)
}

func TestNamedErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		status    int
		title     string
		code      string
		pointer   string
		parameter string
	}{
		{
			name:    "invalid document",
			err:     InvalidDocument("bad", "/data"),
			status:  http.StatusBadRequest,
			title:   "InvalidDocument",
			code:    "invalid_document",
			pointer: "/data",
		},
		{
			name:      "unresolvable include path",
			err:       UnresolvableIncludePath("author.foo"),
			status:    http.StatusBadRequest,
			title:     "UnresolvableIncludePath",
			code:      "unresolvable_include_path",
			parameter: "include",
		},
		{
			name:    "read only field",
			err:     ReadOnlyField("posts", "created-at", "/data/attributes/created-at"),
			status:  http.StatusForbidden,
			title:   "ReadOnlyField",
			code:    "read_only_field",
			pointer: "/data/attributes/created-at",
		},
		{
			name:      "unsortable field",
			err:       UnsortableField("posts", "body"),
			status:    http.StatusBadRequest,
			title:     "UnsortableField",
			code:      "unsortable_field",
			parameter: "sort",
		},
		{
			name:      "unfilterable field",
			err:       UnfilterableField("posts", "body", "gt"),
			status:    http.StatusBadRequest,
			title:     "UnfilterableField",
			code:      "unfilterable_field",
			parameter: "filter[body]",
		},
		{
			name:   "relationship not found",
			err:    RelationshipNotFound("posts", "tags"),
			status: http.StatusNotFound,
			title:  "RelationshipNotFound",
			code:   "relationship_not_found",
		},
		{
			name:   "resource not found",
			err:    ResourceNotFound("posts", "42"),
			status: http.StatusNotFound,
			title:  "ResourceNotFound",
			code:   "resource_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.title, tt.err.Title)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.pointer, tt.err.SourcePointer)
			assert.Equal(t, tt.parameter, tt.err.SourceParameter)
		})
	}
}

func TestAsErrorList(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsErrorList(nil, false))
	})

	t.Run("wrapped japi error", func(t *testing.T) {
		err := fmt.Errorf("saving post: %w", Forbidden("not yours"))
		errs := AsErrorList(err, false)
		require.Len(t, errs, 1)
		assert.Equal(t, http.StatusForbidden, errs.Status())
	})

	t.Run("error list", func(t *testing.T) {
		errs := AsErrorList(ErrorList{BadRequest("a"), BadRequest("b")}, false)
		assert.Len(t, errs, 2)
	})

	t.Run("plain error hidden", func(t *testing.T) {
		errs := AsErrorList(errors.New("connection refused"), false)
		require.Len(t, errs, 1)
		assert.Equal(t, http.StatusInternalServerError, errs[0].Status)
		assert.Empty(t, errs[0].Detail)
	})

	t.Run("plain error exposed in debug", func(t *testing.T) {
		errs := AsErrorList(errors.New("connection refused"), true)
		require.Len(t, errs, 1)
		assert.Equal(t, "connection refused", errs[0].Detail)
	})
}

func TestIsStatus(t *testing.T) {
	assert.True(t, IsStatus(fmt.Errorf("wrap: %w", NotFound("x")), http.StatusNotFound))
	assert.False(t, IsStatus(NotFound("x"), http.StatusConflict))
	assert.False(t, IsStatus(errors.New("x"), http.StatusNotFound))
}

func TestPointer(t *testing.T) {
	assert.Equal(t, "/", Pointer())
	assert.Equal(t, "/data/attributes/title", Pointer("data", "attributes", "title"))
	assert.Equal(t, "/data/attributes/a~1b~0c", Pointer("data", "attributes", "a/b~c"))
}

func TestErrorDocument_Wire(t *testing.T) {
	doc := &Document{Errors: ErrorList{Conflict("type mismatch").WithPointer("/data/type")}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var out struct {
		Errors []*jsonapi.Error `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Errors, 1)
	require.NotNil(t, out.Errors[0].Status)
	assert.Equal(t, http.StatusConflict, *out.Errors[0].Status)
	assert.Equal(t, "conflict", out.Errors[0].Code)
	require.NotNil(t, out.Errors[0].Source)
	assert.Equal(t, "/data/type", out.Errors[0].Source.Pointer)
}
