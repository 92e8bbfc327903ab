package schema

import (
	"fmt"

	"github.com/conduit-lang/japi/pkg/japi/request"
)

// ListSetter replaces or modifies the members of a to-many relationship.
type ListSetter func(req *request.Request, resource any, values []any) error

// Relationship describes a to-one or to-many relationship.
//
// Getters return nil, a resource, a japi.Identifier or *japi.Identifier for
// to-one relationships, and a slice of those for to-many relationships.
// Setters always receive loaded resources.
type Relationship struct {
	Name        string
	ToMany      bool
	RemoteTypes []string
	Get         Getter
	Set         Setter
	// Add and Remove modify to-many relationships in place. When nil the
	// API falls back to reading the relationship and calling Set.
	Add    ListSetter
	Remove ListSetter

	required      bool
	alwaysLinkage bool
}

// ToOne declares a to-one relationship from typed accessors. R is either the
// related resource type or japi.Identifier. A nil set makes it read-only.
func ToOne[T any, R any](name string, remoteTypes []string, get func(T) R, set func(T, R)) *Relationship {
	rel := &Relationship{Name: name, RemoteTypes: remoteTypes}
	if get != nil {
		rel.Get = func(_ *request.Request, resource any) (any, error) {
			r, ok := resource.(T)
			if !ok {
				return nil, fmt.Errorf("relationship %q: unexpected resource %T", name, resource)
			}
			v := get(r)
			if IsNil(v) {
				return nil, nil
			}
			return v, nil
		}
	}
	if set != nil {
		rel.Set = func(_ *request.Request, resource any, value any) error {
			r, ok := resource.(T)
			if !ok {
				return fmt.Errorf("relationship %q: unexpected resource %T", name, resource)
			}
			var related R
			if value != nil {
				related, ok = value.(R)
				if !ok {
					return fmt.Errorf("relationship %q: unexpected related resource %T", name, value)
				}
			}
			set(r, related)
			return nil
		}
	}
	return rel
}

// ToMany declares a to-many relationship from typed accessors.
func ToMany[T any, R any](name string, remoteTypes []string, get func(T) []R, set func(T, []R)) *Relationship {
	rel := &Relationship{Name: name, ToMany: true, RemoteTypes: remoteTypes}
	if get != nil {
		rel.Get = func(_ *request.Request, resource any) (any, error) {
			r, ok := resource.(T)
			if !ok {
				return nil, fmt.Errorf("relationship %q: unexpected resource %T", name, resource)
			}
			items := get(r)
			out := make([]any, 0, len(items))
			for _, item := range items {
				out = append(out, item)
			}
			return out, nil
		}
	}
	if set != nil {
		rel.Set = func(_ *request.Request, resource any, value any) error {
			r, ok := resource.(T)
			if !ok {
				return fmt.Errorf("relationship %q: unexpected resource %T", name, resource)
			}
			values, _ := value.([]any)
			related := make([]R, 0, len(values))
			for _, v := range values {
				item, ok := v.(R)
				if !ok {
					return fmt.Errorf("relationship %q: unexpected related resource %T", name, v)
				}
				related = append(related, item)
			}
			set(r, related)
			return nil
		}
	}
	return rel
}

// ToOneFunc declares a to-one relationship from request aware accessors.
func ToOneFunc(name string, remoteTypes []string, get Getter, set Setter) *Relationship {
	return &Relationship{Name: name, RemoteTypes: remoteTypes, Get: get, Set: set}
}

// ToManyFunc declares a to-many relationship from request aware accessors.
func ToManyFunc(name string, remoteTypes []string, get Getter, set Setter) *Relationship {
	return &Relationship{Name: name, ToMany: true, RemoteTypes: remoteTypes, Get: get, Set: set}
}

// Required marks the relationship as mandatory on create. A required
// to-one relationship can not be set to null.
func (r *Relationship) Required() *Relationship {
	r.required = true
	return r
}

// AlwaysLinkage renders the relationship's data member even when it was
// not included.
func (r *Relationship) AlwaysLinkage() *Relationship {
	r.alwaysLinkage = true
	return r
}

// WithAdd sets the function which adds members to a to-many relationship.
func (r *Relationship) WithAdd(add ListSetter) *Relationship {
	r.Add = add
	return r
}

// WithRemove sets the function which removes members from a to-many
// relationship.
func (r *Relationship) WithRemove(remove ListSetter) *Relationship {
	r.Remove = remove
	return r
}

// IsRequired reports whether the relationship must be sent on create.
func (r *Relationship) IsRequired() bool { return r.required }

// IsReadOnly reports whether clients may not modify the relationship.
func (r *Relationship) IsReadOnly() bool { return r.Set == nil && r.Add == nil && r.Remove == nil }

// HasAlwaysLinkage reports whether linkage is rendered unconditionally.
func (r *Relationship) HasAlwaysLinkage() bool { return r.alwaysLinkage }

// AllowsType reports whether typeName may appear in the relationship.
// Relationships without declared remote types accept every type.
func (r *Relationship) AllowsType(typeName string) bool {
	if len(r.RemoteTypes) == 0 {
		return true
	}
	for _, t := range r.RemoteTypes {
		if t == typeName {
			return true
		}
	}
	return false
}
