package validator

import (
	"fmt"

	"github.com/conduit-lang/japi/pkg/japi"
)

var (
	resourceMembers     = map[string]bool{"id": true, "type": true, "attributes": true, "relationships": true, "links": true, "meta": true}
	relationshipMembers = map[string]bool{"links": true, "data": true, "meta": true}
	identifierMembers   = map[string]bool{"id": true, "type": true, "meta": true}
)

// ValidateIdentifier checks the structure of a resource identifier object.
func ValidateIdentifier(value any, pointer string) (japi.Identifier, japi.ErrorList) {
	var errs japi.ErrorList

	obj, ok := value.(map[string]any)
	if !ok {
		errs.Add(japi.InvalidDocument("A resource identifier must be an object.", pointer))
		return japi.Identifier{}, errs
	}

	for _, key := range sortedKeys(obj) {
		if !identifierMembers[key] {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("A resource identifier may not contain the member '%s'.", key),
				pointer+"/"+japi.EscapeJSONPointer(key),
			))
		}
	}

	typeName, ok := obj["type"].(string)
	if !ok || typeName == "" {
		errs.Add(japi.InvalidDocument("The 'type' member must be a non-empty string.", pointer+"/type"))
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		errs.Add(japi.InvalidDocument("The 'id' member must be a non-empty string.", pointer+"/id"))
	}

	ident := japi.Identifier{Type: typeName, ID: id}
	if meta, ok := obj["meta"].(map[string]any); ok {
		ident.Meta = meta
	}
	return ident, errs
}

// ValidateRelationshipObject checks the structure of a relationship object.
// When requireData is set the data member is mandatory, which is the case
// for every write.
func ValidateRelationshipObject(value any, pointer string, requireData bool) japi.ErrorList {
	var errs japi.ErrorList

	obj, ok := value.(map[string]any)
	if !ok {
		errs.Add(japi.InvalidDocument("A relationship object must be an object.", pointer))
		return errs
	}
	if len(obj) == 0 {
		errs.Add(japi.InvalidDocument("A relationship object must contain 'links', 'data' or 'meta'.", pointer))
		return errs
	}

	for _, key := range sortedKeys(obj) {
		if !relationshipMembers[key] {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("A relationship object may not contain the member '%s'.", key),
				pointer+"/"+japi.EscapeJSONPointer(key),
			))
		}
	}

	if _, ok := obj["links"]; ok {
		if _, isObj := obj["links"].(map[string]any); !isObj {
			errs.Add(japi.InvalidDocument("The 'links' member must be an object.", pointer+"/links"))
		}
	}
	if _, ok := obj["meta"]; ok {
		if _, isObj := obj["meta"].(map[string]any); !isObj {
			errs.Add(japi.InvalidDocument("The 'meta' member must be an object.", pointer+"/meta"))
		}
	}

	data, hasData := obj["data"]
	if !hasData {
		if requireData {
			errs.Add(japi.InvalidDocument("The 'data' member is required.", pointer))
		}
		return errs
	}

	switch d := data.(type) {
	case nil:
	case []any:
		for i, item := range d {
			_, itemErrs := ValidateIdentifier(item, fmt.Sprintf("%s/data/%d", pointer, i))
			errs.Extend(itemErrs)
		}
	default:
		_, itemErrs := ValidateIdentifier(d, pointer+"/data")
		errs.Extend(itemErrs)
	}
	return errs
}

// ValidateResourceObject checks the structure of a resource object. The id
// is only mandatory when requireID is set.
func ValidateResourceObject(value any, pointer string, requireID bool) japi.ErrorList {
	var errs japi.ErrorList

	obj, ok := value.(map[string]any)
	if !ok {
		errs.Add(japi.InvalidDocument("A resource object must be an object.", pointer))
		return errs
	}

	for _, key := range sortedKeys(obj) {
		if !resourceMembers[key] {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("A resource object may not contain the member '%s'.", key),
				pointer+"/"+japi.EscapeJSONPointer(key),
			))
		}
	}

	if typeName, ok := obj["type"].(string); !ok || typeName == "" {
		errs.Add(japi.InvalidDocument("The 'type' member must be a non-empty string.", pointer+"/type"))
	}

	if rawID, present := obj["id"]; present {
		if id, ok := rawID.(string); !ok || id == "" {
			errs.Add(japi.InvalidDocument("The 'id' member must be a non-empty string.", pointer+"/id"))
		}
	} else if requireID {
		errs.Add(japi.InvalidDocument("The 'id' member is required.", pointer))
	}

	for _, member := range []string{"attributes", "relationships", "links", "meta"} {
		raw, present := obj[member]
		if !present {
			continue
		}
		if _, isObj := raw.(map[string]any); !isObj {
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("The '%s' member must be an object.", member),
				pointer+"/"+member,
			))
		}
	}

	if attrs, ok := obj["attributes"].(map[string]any); ok {
		for _, reserved := range []string{"id", "type", "relationships", "links"} {
			if _, clash := attrs[reserved]; clash {
				errs.Add(japi.InvalidDocument(
					fmt.Sprintf("The attribute name '%s' is reserved.", reserved),
					pointer+"/attributes/"+reserved,
				))
			}
		}
	}

	if rels, ok := obj["relationships"].(map[string]any); ok {
		for _, name := range sortedKeys(rels) {
			errs.Extend(ValidateRelationshipObject(rels[name], pointer+"/relationships/"+japi.EscapeJSONPointer(name), false))
		}
	}

	return errs
}

// ValidateTopLevel checks the members of a request document and returns its
// primary data.
func ValidateTopLevel(doc map[string]any) (any, japi.ErrorList) {
	var errs japi.ErrorList

	data, ok := doc["data"]
	if !ok {
		errs.Add(japi.InvalidDocument("The document must contain a 'data' member.", "/"))
		return nil, errs
	}
	if _, hasErrors := doc["errors"]; hasErrors {
		errs.Add(japi.InvalidDocument("The members 'data' and 'errors' must not coexist.", "/errors"))
	}
	for _, key := range sortedKeys(doc) {
		switch key {
		case "data", "errors", "meta", "jsonapi", "links", "included":
		default:
			errs.Add(japi.InvalidDocument(
				fmt.Sprintf("The document may not contain the member '%s'.", key),
				"/"+japi.EscapeJSONPointer(key),
			))
		}
	}
	return data, errs
}
