package encoder

import (
	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/includer"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// ResourceDocument renders a single resource as primary data. A nil
// resource renders "data": null.
func (e *Encoder) ResourceDocument(req *request.Request, resource any, inc *includer.Result) (*japi.Document, error) {
	doc := &japi.Document{}
	if schema.IsNil(resource) {
		doc.SetData(nil)
		return doc, nil
	}

	obj, err := e.Resource(req, resource, inc)
	if err != nil {
		return nil, err
	}
	doc.SetData(obj)

	if doc.Included, err = e.Included(req, inc); err != nil {
		return nil, err
	}
	doc.Links = map[string]any{"self": req.AbsoluteURL().String()}
	return doc, nil
}

// CollectionDocument renders resources as primary data. An empty
// collection renders "data": [].
func (e *Encoder) CollectionDocument(req *request.Request, resources []any, inc *includer.Result) (*japi.Document, error) {
	objs := make([]*japi.ResourceObject, 0, len(resources))
	for _, res := range resources {
		obj, err := e.Resource(req, res, inc)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}

	doc := &japi.Document{}
	doc.SetData(objs)

	var err error
	if doc.Included, err = e.Included(req, inc); err != nil {
		return nil, err
	}
	doc.Links = map[string]any{"self": req.AbsoluteURL().String()}
	return doc, nil
}

// RelationshipDocument renders the linkage of relationship rel of resource
// as primary data, with the self and related links of the relationship.
func (e *Encoder) RelationshipDocument(req *request.Request, t *schema.Type, resource any, rel *schema.Relationship, inc *includer.Result) (*japi.Document, error) {
	relObj, err := e.relationshipObject(req, t, resource, rel, true)
	if err != nil {
		return nil, err
	}

	doc := &japi.Document{Links: relObj.Links, Meta: relObj.Meta}
	doc.SetData(relObj.Data)

	if doc.Included, err = e.Included(req, inc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MetaDocument renders a document without primary data.
func MetaDocument(meta map[string]any) *japi.Document {
	if meta == nil {
		meta = map[string]any{}
	}
	return &japi.Document{Meta: meta}
}

// ErrorDocument renders errors.
func ErrorDocument(errs japi.ErrorList) *japi.Document {
	return &japi.Document{Errors: errs}
}
