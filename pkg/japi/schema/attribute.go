package schema

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/japi/pkg/japi/request"
)

// Getter reads a field value from a resource.
type Getter func(req *request.Request, resource any) (any, error)

// Setter writes a decoded value into a resource. Returning a *japi.Error
// such as japi.Forbidden aborts the write with that status.
type Setter func(req *request.Request, resource any, value any) error

// Attribute describes a single attribute of a type.
type Attribute struct {
	Name string
	Kind Kind
	Get  Getter
	Set  Setter

	required  bool
	writeOnly bool
	sortable  bool
	rules     string
	filterOps []string
}

// Attr declares an attribute from typed accessors. A nil set makes the
// attribute read-only.
func Attr[T any, V any](name string, get func(T) V, set func(T, V)) *Attribute {
	a := &Attribute{
		Name: name,
		Kind: KindOf(reflect.TypeOf((*V)(nil)).Elem()),
	}
	if get != nil {
		a.Get = func(_ *request.Request, resource any) (any, error) {
			r, ok := resource.(T)
			if !ok {
				return nil, fmt.Errorf("attribute %q: unexpected resource %T", name, resource)
			}
			return get(r), nil
		}
	}
	if set != nil {
		a.Set = func(_ *request.Request, resource any, value any) error {
			r, ok := resource.(T)
			if !ok {
				return fmt.Errorf("attribute %q: unexpected resource %T", name, resource)
			}
			v, err := convert[V](value)
			if err != nil {
				return fmt.Errorf("attribute %q: %w", name, err)
			}
			set(r, v)
			return nil
		}
	}
	return a
}

// AttrFunc declares an attribute from request aware accessors.
func AttrFunc(name string, kind Kind, get Getter, set Setter) *Attribute {
	return &Attribute{Name: name, Kind: kind, Get: get, Set: set}
}

// Required marks the attribute as mandatory when a resource is created.
func (a *Attribute) Required() *Attribute {
	a.required = true
	return a
}

// WriteOnly hides the attribute from responses.
func (a *Attribute) WriteOnly() *Attribute {
	a.writeOnly = true
	return a
}

// Sortable allows sorting collections by the attribute.
func (a *Attribute) Sortable() *Attribute {
	a.sortable = true
	return a
}

// Filterable allows the given filter operators on the attribute. Without
// operators only eq is allowed.
func (a *Attribute) Filterable(ops ...string) *Attribute {
	if len(ops) == 0 {
		ops = []string{"eq"}
	}
	a.filterOps = append(a.filterOps, ops...)
	return a
}

// Validate attaches validator rules (go-playground/validator tag syntax)
// which incoming values must satisfy.
func (a *Attribute) Validate(rules string) *Attribute {
	a.rules = rules
	return a
}

// IsRequired reports whether the attribute must be sent on create.
func (a *Attribute) IsRequired() bool { return a.required }

// IsReadOnly reports whether clients may not write the attribute.
func (a *Attribute) IsReadOnly() bool { return a.Set == nil }

// IsWriteOnly reports whether the attribute is hidden from responses.
func (a *Attribute) IsWriteOnly() bool { return a.writeOnly || a.Get == nil }

// IsSortable reports whether collections can be sorted by the attribute.
func (a *Attribute) IsSortable() bool { return a.sortable }

// Rules returns the validator rules.
func (a *Attribute) Rules() string { return a.rules }

// AllowsFilter reports whether op may be used on the attribute.
func (a *Attribute) AllowsFilter(op string) bool {
	for _, allowed := range a.filterOps {
		if allowed == op {
			return true
		}
	}
	return false
}

// FilterOps returns the allowed filter operators.
func (a *Attribute) FilterOps() []string { return a.filterOps }
