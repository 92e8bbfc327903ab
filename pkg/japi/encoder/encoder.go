// Package encoder renders resources as JSON:API resource objects and
// documents.
package encoder

import (
	"fmt"
	"net/url"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/includer"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// ResourceURL returns BASE/TYPE/ID.
func ResourceURL(base, typeName, id string) string {
	return base + "/" + typeName + "/" + url.PathEscape(id)
}

// RelationshipURL returns BASE/TYPE/ID/relationships/REL.
func RelationshipURL(base, typeName, id, rel string) string {
	return ResourceURL(base, typeName, id) + "/relationships/" + rel
}

// RelatedURL returns BASE/TYPE/ID/REL.
func RelatedURL(base, typeName, id, rel string) string {
	return ResourceURL(base, typeName, id) + "/" + rel
}

// CollectionURL returns BASE/TYPE.
func CollectionURL(base, typeName string) string {
	return base + "/" + typeName
}

// Encoder renders resources of the types of a registry.
type Encoder struct {
	registry *schema.Registry
}

// New creates an encoder.
func New(registry *schema.Registry) *Encoder {
	return &Encoder{registry: registry}
}

// Identifier returns the identifier of a resource or identifier value.
func (e *Encoder) Identifier(resource any) (japi.Identifier, error) {
	return e.registry.Identifier(resource)
}

// Resource renders resource. inc tells which relationships were followed
// by include paths; it may be nil.
func (e *Encoder) Resource(req *request.Request, resource any, inc *includer.Result) (*japi.ResourceObject, error) {
	t, err := e.registry.TypeOf(resource)
	if err != nil {
		return nil, err
	}
	return e.encode(req, t, resource, inc)
}

func (e *Encoder) encode(req *request.Request, t *schema.Type, resource any, inc *includer.Result) (*japi.ResourceObject, error) {
	id := t.ID(resource)
	obj := &japi.ResourceObject{Type: t.Name, ID: id}

	for _, attr := range t.AttributeList() {
		if attr.IsWriteOnly() || !req.Params.FieldRequested(t.Name, attr.Name) {
			continue
		}
		value, err := attr.Get(req, resource)
		if err != nil {
			return nil, fmt.Errorf("get attribute %s.%s: %w", t.Name, attr.Name, err)
		}
		obj.SetAttribute(attr.Name, value)
	}

	for _, rel := range t.RelationshipList() {
		if !req.Params.FieldRequested(t.Name, rel.Name) {
			continue
		}
		withData := rel.HasAlwaysLinkage() || inc.Traversed(t.Name, rel.Name)
		relObj, err := e.relationshipObject(req, t, resource, rel, withData)
		if err != nil {
			return nil, err
		}
		obj.SetRelationship(rel.Name, relObj)
	}

	obj.Links = map[string]any{"self": ResourceURL(req.BaseURL, t.Name, id)}
	for _, link := range t.LinkList() {
		href, err := link.Get(req, resource)
		if err != nil {
			return nil, fmt.Errorf("get link %s.%s: %w", t.Name, link.Name, err)
		}
		if href != "" {
			obj.Links[link.Name] = href
		}
	}

	for _, meta := range t.MetaList() {
		value, err := meta.Get(req, resource)
		if err != nil {
			return nil, fmt.Errorf("get meta %s.%s: %w", t.Name, meta.Name, err)
		}
		if obj.Meta == nil {
			obj.Meta = make(map[string]any)
		}
		obj.Meta[meta.Name] = value
	}

	return obj, nil
}

func (e *Encoder) relationshipObject(req *request.Request, t *schema.Type, resource any, rel *schema.Relationship, withData bool) (*japi.RelationshipObject, error) {
	id := t.ID(resource)
	obj := &japi.RelationshipObject{
		Links: map[string]any{
			"self":    RelationshipURL(req.BaseURL, t.Name, id, rel.Name),
			"related": RelatedURL(req.BaseURL, t.Name, id, rel.Name),
		},
	}
	if withData {
		linkage, err := e.Linkage(req, t, resource, rel)
		if err != nil {
			return nil, err
		}
		obj.Data = linkage
	}
	return obj, nil
}

// Linkage reads the relationship and returns its identifiers.
func (e *Encoder) Linkage(req *request.Request, t *schema.Type, resource any, rel *schema.Relationship) (*japi.Linkage, error) {
	if rel.Get == nil {
		if rel.ToMany {
			return japi.ToManyLinkage(nil), nil
		}
		return japi.ToOneLinkage(nil), nil
	}

	value, err := rel.Get(req, resource)
	if err != nil {
		return nil, fmt.Errorf("get relationship %s.%s: %w", t.Name, rel.Name, err)
	}

	if !rel.ToMany {
		if schema.IsNil(value) {
			return japi.ToOneLinkage(nil), nil
		}
		ident, err := e.registry.Identifier(value)
		if err != nil {
			return nil, fmt.Errorf("relationship %s.%s: %w", t.Name, rel.Name, err)
		}
		return japi.ToOneLinkage(&ident), nil
	}

	items, err := toList(value)
	if err != nil {
		return nil, fmt.Errorf("relationship %s.%s: %w", t.Name, rel.Name, err)
	}
	idents := make([]japi.Identifier, 0, len(items))
	for _, item := range items {
		ident, err := e.registry.Identifier(item)
		if err != nil {
			return nil, fmt.Errorf("relationship %s.%s: %w", t.Name, rel.Name, err)
		}
		idents = append(idents, ident)
	}
	return japi.ToManyLinkage(idents), nil
}

// Included renders the resources found by the includer.
func (e *Encoder) Included(req *request.Request, inc *includer.Result) ([]*japi.ResourceObject, error) {
	if inc == nil {
		return nil, nil
	}
	out := make([]*japi.ResourceObject, 0, len(inc.Included))
	for _, entry := range inc.Included {
		obj, err := e.encode(req, entry.Type, entry.Resource, inc)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func toList(value any) ([]any, error) {
	if schema.IsNil(value) {
		return nil, nil
	}
	switch v := value.(type) {
	case []any:
		return v, nil
	case []japi.Identifier:
		out := make([]any, 0, len(v))
		for _, ident := range v {
			out = append(out, ident)
		}
		return out, nil
	}
	return nil, fmt.Errorf("to-many getter returned %T, expected a list", value)
}
