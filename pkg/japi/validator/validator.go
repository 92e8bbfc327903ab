// Package validator checks inbound JSON:API documents against the declared
// types before any resource is touched.
package validator

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	playground "github.com/go-playground/validator/v10"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// Operation is the kind of write being validated.
type Operation int

const (
	Create Operation = iota
	Update
)

func (o Operation) String() string {
	if o == Update {
		return "update"
	}
	return "create"
}

// RelationshipData is the validated data member of a relationship object.
type RelationshipData struct {
	Relationship *schema.Relationship
	Identifiers  []japi.Identifier
	// Null is set for to-one relationships which are being cleared.
	Null bool
}

// Payload is a validated resource object, ready to be applied.
type Payload struct {
	Type          *schema.Type
	ID            string
	Attributes    map[string]any
	AttributeKeys []string
	Relationships map[string]*RelationshipData
	RelKeys       []string
	Meta          map[string]any
}

// Validator validates request documents against registered types.
type Validator struct {
	registry *schema.Registry
	rules    *playground.Validate
}

// New creates a validator for the types of registry.
func New(registry *schema.Registry) *Validator {
	return &Validator{
		registry: registry,
		rules:    playground.New(),
	}
}

// Rules exposes the rule engine so applications can register custom rule
// tags.
func (v *Validator) Rules() *playground.Validate {
	return v.rules
}

// ValidateResource validates a create or update document for t. For updates
// id is the id from the URL, which the document must repeat.
func (v *Validator) ValidateResource(doc map[string]any, t *schema.Type, op Operation, id string) (*Payload, error) {
	data, errs := ValidateTopLevel(doc)
	if !errs.Empty() {
		return nil, errs
	}

	errs = ValidateResourceObject(data, "/data", op == Update)
	if !errs.Empty() {
		return nil, errs
	}

	obj := data.(map[string]any)
	payload := &Payload{
		Type:          t,
		Attributes:    make(map[string]any),
		Relationships: make(map[string]*RelationshipData),
	}
	if meta, ok := obj["meta"].(map[string]any); ok {
		payload.Meta = meta
	}

	if typeName := obj["type"].(string); typeName != t.Name {
		return nil, japi.ErrorList{japi.Conflict(
			fmt.Sprintf("The type '%s' does not match the endpoint type '%s'.", typeName, t.Name),
		).WithPointer("/data/type")}
	}

	if rawID, ok := obj["id"].(string); ok {
		switch {
		case op == Update && rawID != id:
			return nil, japi.ErrorList{japi.Conflict(
				fmt.Sprintf("The id '%s' does not match the endpoint id '%s'.", rawID, id),
			).WithPointer("/data/id")}
		case op == Create && !t.AllowsClientID():
			return nil, japi.ErrorList{japi.Forbidden(
				fmt.Sprintf("The type '%s' does not support client generated ids.", t.Name),
			).WithPointer("/data/id")}
		}
		payload.ID = rawID
	}

	attrs, _ := obj["attributes"].(map[string]any)
	errs.Extend(v.validateAttributes(t, op, attrs, payload))

	rels, _ := obj["relationships"].(map[string]any)
	errs.Extend(v.validateRelationships(t, op, rels, payload))

	if !errs.Empty() {
		return nil, errs
	}
	return payload, nil
}

func (v *Validator) validateAttributes(t *schema.Type, op Operation, attrs map[string]any, payload *Payload) japi.ErrorList {
	var errs japi.ErrorList

	for _, name := range sortedKeys(attrs) {
		pointer := "/data/attributes/" + japi.EscapeJSONPointer(name)
		attr, ok := t.Attribute(name)
		if !ok {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("The type '%s' has no attribute '%s'.", t.Name, name),
				pointer,
			))
			continue
		}
		if attr.IsReadOnly() {
			errs.Add(japi.ReadOnlyField(t.Name, name, pointer))
			continue
		}

		value := attrs[name]
		if !attr.Kind.Check(value) {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("The attribute '%s' must be of type %s.", name, attr.Kind),
				pointer,
			))
			continue
		}
		value = attr.Kind.Normalize(value)

		if value == nil && attr.IsRequired() {
			errs.Add(japi.UnprocessableEntity(
				fmt.Sprintf("The attribute '%s' can not be null.", name),
			).WithPointer(pointer).WithCode("validation_error"))
			continue
		}
		if err := v.checkRules(name, value, attr.Rules(), pointer); err != nil {
			errs.Add(err)
			continue
		}

		payload.Attributes[name] = value
		payload.AttributeKeys = append(payload.AttributeKeys, name)
	}

	if op == Create {
		for _, attr := range t.AttributeList() {
			if !attr.IsRequired() {
				continue
			}
			if _, ok := attrs[attr.Name]; !ok {
				errs.Add(japi.InvalidDocument(
					fmt.Sprintf("The attribute '%s' is required.", attr.Name),
					"/data/attributes",
				).WithCode("required"))
			}
		}
	}

	return errs
}

func (v *Validator) checkRules(name string, value any, rules, pointer string) *japi.Error {
	if rules == "" || value == nil {
		return nil
	}

	err := v.rules.Var(value, rules)
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		detail := fmt.Sprintf("The attribute '%s' failed the '%s' rule.", name, fe.Tag())
		if fe.Param() != "" {
			detail = fmt.Sprintf("The attribute '%s' failed the '%s=%s' rule.", name, fe.Tag(), fe.Param())
		}
		return japi.UnprocessableEntity(detail).WithPointer(pointer).WithCode("validation_error")
	}

	// Invalid rule tags are programming errors, not client errors.
	return japi.NewError(http.StatusInternalServerError, err.Error())
}

func (v *Validator) validateRelationships(t *schema.Type, op Operation, rels map[string]any, payload *Payload) japi.ErrorList {
	var errs japi.ErrorList

	for _, name := range sortedKeys(rels) {
		pointer := "/data/relationships/" + japi.EscapeJSONPointer(name)
		rel, ok := t.Relationship(name)
		if !ok {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("The type '%s' has no relationship '%s'.", t.Name, name),
				pointer,
			))
			continue
		}
		if rel.IsReadOnly() || rel.Set == nil {
			errs.Add(japi.ReadOnlyField(t.Name, name, pointer))
			continue
		}

		obj := rels[name].(map[string]any)
		if _, hasData := obj["data"]; !hasData {
			errs.Add(japi.InvalidDocument("The 'data' member is required.", pointer))
			continue
		}

		data, dataErrs := v.validateLinkage(rel, obj["data"], pointer+"/data")
		if !dataErrs.Empty() {
			errs.Extend(dataErrs)
			continue
		}
		payload.Relationships[name] = data
		payload.RelKeys = append(payload.RelKeys, name)
	}

	if op == Create {
		for _, rel := range t.RelationshipList() {
			if !rel.IsRequired() {
				continue
			}
			if _, ok := rels[rel.Name]; !ok {
				errs.Add(japi.InvalidDocument(
					fmt.Sprintf("The relationship '%s' is required.", rel.Name),
					"/data/relationships",
				).WithCode("required"))
			}
		}
	}

	return errs
}

// validateLinkage checks the data member of a relationship object against
// the relationship's cardinality and remote types.
func (v *Validator) validateLinkage(rel *schema.Relationship, data any, pointer string) (*RelationshipData, japi.ErrorList) {
	var errs japi.ErrorList
	out := &RelationshipData{Relationship: rel}

	if rel.ToMany {
		items, ok := data.([]any)
		if !ok {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("The relationship '%s' is to-many and requires an array.", rel.Name),
				pointer,
			))
			return nil, errs
		}
		for i, item := range items {
			ident, identErrs := v.checkIdentifier(rel, item, fmt.Sprintf("%s/%d", pointer, i))
			if !identErrs.Empty() {
				errs.Extend(identErrs)
				continue
			}
			out.Identifiers = append(out.Identifiers, ident)
		}
		return out, errs
	}

	if data == nil {
		if rel.IsRequired() {
			errs.Add(japi.UnprocessableEntity(
				fmt.Sprintf("The relationship '%s' can not be null.", rel.Name),
			).WithPointer(pointer).WithCode("validation_error"))
			return nil, errs
		}
		out.Null = true
		return out, errs
	}
	if _, isList := data.([]any); isList {
		errs.Add(japi.InvalidDocument(
			fmt.Sprintf("The relationship '%s' is to-one and requires null or an identifier.", rel.Name),
			pointer,
		))
		return nil, errs
	}

	ident, identErrs := v.checkIdentifier(rel, data, pointer)
	if !identErrs.Empty() {
		return nil, identErrs
	}
	out.Identifiers = []japi.Identifier{ident}
	return out, errs
}

func (v *Validator) checkIdentifier(rel *schema.Relationship, value any, pointer string) (japi.Identifier, japi.ErrorList) {
	ident, errs := ValidateIdentifier(value, pointer)
	if !errs.Empty() {
		return ident, errs
	}
	if !rel.AllowsType(ident.Type) {
		errs.Add(japi.Conflict(
			fmt.Sprintf("The relationship '%s' does not accept the type '%s'.", rel.Name, ident.Type),
		).WithPointer(pointer + "/type"))
		return ident, errs
	}
	if _, ok := v.registry.Type(ident.Type); !ok {
		errs.Add(japi.NotFound(
			fmt.Sprintf("The type '%s' does not exist.", ident.Type),
		).WithPointer(pointer + "/type"))
	}
	return ident, errs
}

// ValidateRelationshipDocument validates the body of a relationship
// endpoint request against the relationship's cardinality.
func (v *Validator) ValidateRelationshipDocument(doc map[string]any, rel *schema.Relationship) (*RelationshipData, error) {
	data, errs := ValidateTopLevel(doc)
	if !errs.Empty() {
		return nil, errs
	}

	out, errs := v.validateLinkage(rel, data, "/data")
	if !errs.Empty() {
		return nil, errs
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
