package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Kind is the JSON kind an attribute accepts.
type Kind int

const (
	Any Kind = iota
	String
	Number
	Integer
	Boolean
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "any"
	}
}

var timeType = reflect.TypeOf(time.Time{})

// KindOf derives the JSON kind of a Go type.
func KindOf(t reflect.Type) Kind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return String
	}
	switch t.Kind() {
	case reflect.String:
		return String
	case reflect.Bool:
		return Boolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer
	case reflect.Float32, reflect.Float64:
		return Number
	case reflect.Map, reflect.Struct:
		return Object
	case reflect.Slice, reflect.Array:
		return Array
	default:
		return Any
	}
}

// Check reports whether a decoded JSON value has kind k. null is accepted
// by every kind; required checks happen elsewhere.
func (k Kind) Check(v any) bool {
	if v == nil || k == Any {
		return true
	}
	switch k {
	case String:
		_, ok := v.(string)
		return ok
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Number:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Float64()
			return err == nil
		case float64, float32, int, int64:
			return true
		}
		return false
	case Integer:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Int64()
			return err == nil
		case float64:
			return n == float64(int64(n))
		case int, int64:
			return true
		}
		return false
	case Object:
		_, ok := v.(map[string]any)
		return ok
	case Array:
		_, ok := v.([]any)
		return ok
	}
	return false
}

// Normalize converts json.Number values into int64 or float64 according to
// the kind, so rule checks and setters see native numbers.
func (k Kind) Normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if k == Integer {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if i, err := n.Int64(); err == nil && k == Any {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}

// convert turns a decoded JSON value into V by round-tripping it through
// encoding/json.
func convert[V any](value any) (V, error) {
	var out V
	if value == nil {
		return out, nil
	}
	if v, ok := value.(V); ok {
		return v, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("expected %s: %w", reflect.TypeOf(out), err)
	}
	return out, nil
}

// IsNil reports whether v is nil or a typed nil pointer, map or slice.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}
