package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/conduit-lang/japi/pkg/japi"
)

var (
	// ErrUnknownType is returned when a type name or Go type is not registered.
	ErrUnknownType = errors.New("schema: unknown type")
	// ErrDuplicateType is returned when a type name or Go type is registered twice.
	ErrDuplicateType = errors.New("schema: duplicate type")
)

// Typer lets a resource name its JSON:API type explicitly. It takes
// precedence over the Go type lookup.
type Typer interface {
	JSONAPIType() string
}

// Registry holds every type of an API. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Type
	byGo   map[reflect.Type]*Type
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Type),
		byGo:   make(map[reflect.Type]*Type),
	}
}

// Register adds types to the registry.
func (r *Registry) Register(types ...*Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		if t.Name == "" {
			return fmt.Errorf("%w: empty name", ErrDuplicateType)
		}
		if _, ok := r.byName[t.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
		}
		if t.goType != nil {
			if other, ok := r.byGo[t.goType]; ok {
				return fmt.Errorf("%w: %s is already registered as %s", ErrDuplicateType, t.goType, other.Name)
			}
			r.byGo[t.goType] = t
		}
		r.byName[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(types ...*Type) {
	if err := r.Register(types...); err != nil {
		panic(err)
	}
}

// Type returns the type called name.
func (r *Registry) Type(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Types returns every type in registration order.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]*Type, 0, len(r.order))
	for _, name := range r.order {
		types = append(types, r.byName[name])
	}
	return types
}

// TypeOf returns the type of a resource.
func (r *Registry) TypeOf(resource any) (*Type, error) {
	if typer, ok := resource.(Typer); ok {
		if t, ok := r.Type(typer.JSONAPIType()); ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typer.JSONAPIType())
	}

	r.mu.RLock()
	t, ok := r.byGo[reflect.TypeOf(resource)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, resource)
	}
	return t, nil
}

// Identifier returns the identifier of a resource. Identifiers pass through
// unchanged.
func (r *Registry) Identifier(resource any) (japi.Identifier, error) {
	switch v := resource.(type) {
	case japi.Identifier:
		return v, nil
	case *japi.Identifier:
		return *v, nil
	}
	t, err := r.TypeOf(resource)
	if err != nil {
		return japi.Identifier{}, err
	}
	return japi.Identifier{Type: t.Name, ID: t.ID(resource)}, nil
}
