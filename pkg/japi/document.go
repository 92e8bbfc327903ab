package japi

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Version is the JSON:API version announced in every document.
const Version = "1.0"

// Identifier is a resource identifier object.
type Identifier struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Key returns the (type, id) pair used to deduplicate resources.
func (i Identifier) Key() string {
	return i.Type + "\x00" + i.ID
}

func (i Identifier) String() string {
	return fmt.Sprintf("(type='%s', id='%s')", i.Type, i.ID)
}

// Linkage is the data member of a relationship object: null, a single
// identifier or a list of identifiers.
type Linkage struct {
	Many bool
	One  *Identifier
	List []Identifier
}

// ToOneLinkage builds to-one linkage. A nil identifier renders as null.
func ToOneLinkage(id *Identifier) *Linkage {
	return &Linkage{One: id}
}

// ToManyLinkage builds to-many linkage. A nil slice renders as [].
func ToManyLinkage(ids []Identifier) *Linkage {
	if ids == nil {
		ids = []Identifier{}
	}
	return &Linkage{Many: true, List: ids}
}

// Identifiers returns the identifiers regardless of cardinality.
func (l *Linkage) Identifiers() []Identifier {
	if l == nil {
		return nil
	}
	if l.Many {
		return l.List
	}
	if l.One == nil {
		return nil
	}
	return []Identifier{*l.One}
}

func (l Linkage) MarshalJSON() ([]byte, error) {
	if l.Many {
		if l.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.List)
	}
	if l.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.One)
}

// RelationshipObject is a relationship object inside a resource object or
// the top level of a relationship document.
type RelationshipObject struct {
	Links map[string]any `json:"links,omitempty"`
	Data  *Linkage       `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// ResourceObject is the wire form of a single resource.
type ResourceObject struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id,omitempty"`
	Attributes    map[string]any                 `json:"-"`
	AttributeKeys []string                       `json:"-"`
	Relationships map[string]*RelationshipObject `json:"-"`
	RelKeys       []string                       `json:"-"`
	Links         map[string]any                 `json:"links,omitempty"`
	Meta          map[string]any                 `json:"meta,omitempty"`
}

// Identifier returns the identifier of the object.
func (r *ResourceObject) Identifier() Identifier {
	return Identifier{Type: r.Type, ID: r.ID}
}

// SetAttribute adds an attribute, keeping insertion order on the wire.
func (r *ResourceObject) SetAttribute(name string, value any) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	if _, ok := r.Attributes[name]; !ok {
		r.AttributeKeys = append(r.AttributeKeys, name)
	}
	r.Attributes[name] = value
}

// SetRelationship adds a relationship, keeping insertion order on the wire.
func (r *ResourceObject) SetRelationship(name string, rel *RelationshipObject) {
	if r.Relationships == nil {
		r.Relationships = make(map[string]*RelationshipObject)
	}
	if _, ok := r.Relationships[name]; !ok {
		r.RelKeys = append(r.RelKeys, name)
	}
	r.Relationships[name] = rel
}

func (r ResourceObject) MarshalJSON() ([]byte, error) {
	obj := orderedObject{}
	obj.add("type", r.Type)
	if r.ID != "" {
		obj.add("id", r.ID)
	}
	if len(r.Attributes) > 0 {
		attrs := orderedObject{}
		for _, k := range keysInOrder(r.AttributeKeys, r.Attributes) {
			attrs.add(k, r.Attributes[k])
		}
		obj.add("attributes", attrs)
	}
	if len(r.Relationships) > 0 {
		rels := orderedObject{}
		for _, k := range keysInOrder(r.RelKeys, r.Relationships) {
			rels.add(k, r.Relationships[k])
		}
		obj.add("relationships", rels)
	}
	if len(r.Links) > 0 {
		obj.add("links", r.Links)
	}
	if len(r.Meta) > 0 {
		obj.add("meta", r.Meta)
	}
	return obj.MarshalJSON()
}

// Object is the top level jsonapi member.
type Object struct {
	Version string         `json:"version"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Document is a top level JSON:API document.
type Document struct {
	JSONAPI  *Object
	Included []*ResourceObject
	Links    map[string]any
	Meta     map[string]any
	Errors   ErrorList

	data    any
	hasData bool
}

// SetData sets the primary data. Passing nil renders an explicit null.
func (d *Document) SetData(data any) {
	d.data = data
	d.hasData = true
}

// Data returns the primary data and whether it was set.
func (d *Document) Data() (any, bool) {
	return d.data, d.hasData
}

func (d *Document) MarshalJSON() ([]byte, error) {
	obj := orderedObject{}
	if d.JSONAPI != nil {
		obj.add("jsonapi", d.JSONAPI)
	}
	if len(d.Errors) > 0 {
		obj.add("errors", d.Errors.ToJSONAPI())
	} else if d.hasData {
		obj.add("data", d.data)
		if len(d.Included) > 0 {
			obj.add("included", d.Included)
		}
	}
	if len(d.Links) > 0 {
		obj.add("links", d.Links)
	}
	if len(d.Meta) > 0 {
		obj.add("meta", d.Meta)
	}
	return obj.MarshalJSON()
}

type orderedObject struct {
	keys   []string
	values []any
}

func (o *orderedObject) add(key string, value any) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range o.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal member %q: %w", k, err)
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// keysInOrder returns the recorded keys followed by any map keys that were
// set without going through the ordered setters.
func keysInOrder[V any](order []string, m map[string]V) []string {
	seen := make(map[string]bool, len(order))
	keys := make([]string, 0, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
