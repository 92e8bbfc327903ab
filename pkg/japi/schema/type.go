// Package schema declares JSON:API types: how a Go value maps onto a
// resource object and which handler persists it.
package schema

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/japi/pkg/japi/request"
)

// Handler is the persistence collaborator of a type. It is supplied by the
// application.
type Handler interface {
	// Collection returns the resources matching req.Params (filters, sort
	// and page) and the total number of matches before paging.
	Collection(req *request.Request) ([]any, int, error)
	// Fetch loads resources by id. Missing ids are absent from the result.
	Fetch(req *request.Request, ids []string) (map[string]any, error)
	// Save persists a new or modified resource.
	Save(req *request.Request, resource any, created bool) error
	// Delete removes a resource. It returns japi.ResourceNotFound when the
	// resource does not exist.
	Delete(req *request.Request, id string) error
}

// CursorPager is implemented by handlers which support page[cursor]. It
// returns one page and the cursors of the previous and next page; an empty
// cursor means there is no such page.
type CursorPager interface {
	CursorPage(req *request.Request) (resources []any, prev, next string, err error)
}

// Link is an entry of a resource object's links member.
type Link struct {
	Name string
	Get  func(req *request.Request, resource any) (string, error)
}

// Meta is an entry of a resource object's meta member.
type Meta struct {
	Name string
	Get  Getter
}

// Type maps a Go type onto a JSON:API resource type.
type Type struct {
	Name string

	goType  reflect.Type
	factory func() any
	clone   func(any) any
	getID   func(any) string
	setID   func(any, string)

	attrs     []*Attribute
	attrIndex map[string]*Attribute
	rels      []*Relationship
	relIndex  map[string]*Relationship
	links     []*Link
	meta      []*Meta

	handler       Handler
	allowClientID bool
}

// NewType declares the type name for resources of Go type T. T is usually a
// pointer to a struct; new resources are allocated from its element type.
func NewType[T any](name string, getID func(T) string, setID func(T, string)) *Type {
	goType := reflect.TypeOf((*T)(nil)).Elem()
	t := &Type{
		Name:      name,
		goType:    goType,
		attrIndex: make(map[string]*Attribute),
		relIndex:  make(map[string]*Relationship),
	}
	t.getID = func(resource any) string {
		r, ok := resource.(T)
		if !ok {
			return ""
		}
		return getID(r)
	}
	if setID != nil {
		t.setID = func(resource any, id string) {
			if r, ok := resource.(T); ok {
				setID(r, id)
			}
		}
	}
	if goType.Kind() == reflect.Pointer {
		elem := goType.Elem()
		t.factory = func() any { return reflect.New(elem).Interface() }
		if elem.Kind() == reflect.Struct {
			t.clone = func(resource any) any {
				v := reflect.ValueOf(resource)
				if v.Type() != goType || v.IsNil() {
					return resource
				}
				c := reflect.New(elem)
				c.Elem().Set(v.Elem())
				return c.Interface()
			}
		}
	}
	return t
}

// Attributes adds attribute descriptors in rendering order.
func (t *Type) Attributes(attrs ...*Attribute) *Type {
	for _, a := range attrs {
		if _, dup := t.attrIndex[a.Name]; dup {
			panic(fmt.Sprintf("schema: type %q declares attribute %q twice", t.Name, a.Name))
		}
		t.attrs = append(t.attrs, a)
		t.attrIndex[a.Name] = a
	}
	return t
}

// Relationships adds relationship descriptors in rendering order.
func (t *Type) Relationships(rels ...*Relationship) *Type {
	for _, r := range rels {
		if _, dup := t.relIndex[r.Name]; dup {
			panic(fmt.Sprintf("schema: type %q declares relationship %q twice", t.Name, r.Name))
		}
		if _, clash := t.attrIndex[r.Name]; clash {
			panic(fmt.Sprintf("schema: type %q uses %q for an attribute and a relationship", t.Name, r.Name))
		}
		t.rels = append(t.rels, r)
		t.relIndex[r.Name] = r
	}
	return t
}

// Links adds entries to every resource object's links member.
func (t *Type) Links(links ...*Link) *Type {
	t.links = append(t.links, links...)
	return t
}

// Meta adds entries to every resource object's meta member.
func (t *Type) Meta(meta ...*Meta) *Type {
	t.meta = append(t.meta, meta...)
	return t
}

// WithHandler sets the persistence handler.
func (t *Type) WithHandler(h Handler) *Type {
	t.handler = h
	return t
}

// WithFactory overrides how new resources are allocated.
func (t *Type) WithFactory(factory func() any) *Type {
	t.factory = factory
	return t
}

// AllowClientIDs accepts client generated ids on create.
func (t *Type) AllowClientIDs() *Type {
	t.allowClientID = true
	return t
}

// GoType returns the Go type of the resources.
func (t *Type) GoType() reflect.Type { return t.goType }

// Handler returns the persistence handler, or nil.
func (t *Type) Handler() Handler { return t.handler }

// AllowsClientID reports whether clients may choose the id on create.
func (t *Type) AllowsClientID() bool { return t.allowClientID }

// ID returns the id of resource.
func (t *Type) ID(resource any) string { return t.getID(resource) }

// SetID assigns id to resource. It reports false when the type has no id
// setter.
func (t *Type) SetID(resource any, id string) bool {
	if t.setID == nil {
		return false
	}
	t.setID(resource, id)
	return true
}

// New allocates an empty resource.
func (t *Type) New() (any, error) {
	if t.factory == nil {
		return nil, fmt.Errorf("schema: type %q has no factory", t.Name)
	}
	return t.factory(), nil
}

// Clone returns a shallow copy of resource. Resources which are not
// pointers to structs are returned unchanged.
func (t *Type) Clone(resource any) any {
	if t.clone == nil || resource == nil {
		return resource
	}
	return t.clone(resource)
}

// Attribute returns the attribute descriptor called name.
func (t *Type) Attribute(name string) (*Attribute, bool) {
	a, ok := t.attrIndex[name]
	return a, ok
}

// Relationship returns the relationship descriptor called name.
func (t *Type) Relationship(name string) (*Relationship, bool) {
	r, ok := t.relIndex[name]
	return r, ok
}

// AttributeList returns the attributes in declaration order.
func (t *Type) AttributeList() []*Attribute { return t.attrs }

// RelationshipList returns the relationships in declaration order.
func (t *Type) RelationshipList() []*Relationship { return t.rels }

// LinkList returns the declared links.
func (t *Type) LinkList() []*Link { return t.links }

// MetaList returns the declared meta entries.
func (t *Type) MetaList() []*Meta { return t.meta }
