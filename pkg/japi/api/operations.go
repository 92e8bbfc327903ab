package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/encoder"
	"github.com/conduit-lang/japi/pkg/japi/pagination"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
	"github.com/conduit-lang/japi/pkg/japi/validator"
)

func (a *API) getCollection(req *request.Request, t *schema.Type, _ map[string]any) (*response, error) {
	if err := checkSortAndFilter(req, t); err != nil {
		return nil, err
	}
	if err := a.includer.Validate(t, req.Params.Include); err != nil {
		return nil, err
	}
	page := a.normalizePage(req)

	var (
		resources []any
		paginator pagination.Paginator
	)
	switch page.Strategy {
	case request.Cursor:
		pager, ok := t.Handler().(schema.CursorPager)
		if !ok {
			return nil, japi.BadRequest(
				fmt.Sprintf("The type '%s' does not support cursor pagination.", t.Name),
			).WithParameter("page[cursor]")
		}
		items, prev, next, err := pager.CursorPage(req)
		if err != nil {
			return nil, err
		}
		resources = items
		paginator = pagination.NewCursor(page.Limit, page.Cursor, prev, next)
	default:
		items, total, err := t.Handler().Collection(req)
		if err != nil {
			return nil, err
		}
		resources = items
		if page.Strategy == request.NumberSize {
			paginator = pagination.NewNumberSize(page.Number, page.Size, total)
		} else {
			paginator = pagination.NewLimitOffset(page.Limit, page.Offset, total)
		}
	}

	inc, err := a.includer.Fetch(req, resources, req.Params.Include)
	if err != nil {
		return nil, err
	}
	doc, err := a.encoder.CollectionDocument(req, resources, inc)
	if err != nil {
		return nil, err
	}
	addPagination(doc, req, paginator)

	return &response{status: http.StatusOK, doc: doc}, nil
}

func (a *API) getResource(req *request.Request, t *schema.Type, _ map[string]any) (*response, error) {
	if err := a.includer.Validate(t, req.Params.Include); err != nil {
		return nil, err
	}
	res, err := a.fetchOne(req, t, req.Vars["id"])
	if err != nil {
		return nil, err
	}
	return a.resourceResponse(req, http.StatusOK, res)
}

func (a *API) createResource(req *request.Request, t *schema.Type, body map[string]any) (*response, error) {
	payload, err := a.validator.ValidateResource(body, t, validator.Create, "")
	if err != nil {
		return nil, err
	}
	if err := a.includer.Validate(t, req.Params.Include); err != nil {
		return nil, err
	}

	res, err := t.New()
	if err != nil {
		return nil, err
	}
	if payload.ID != "" && !t.SetID(res, payload.ID) {
		return nil, japi.Forbidden(
			fmt.Sprintf("The type '%s' does not support client generated ids.", t.Name),
		).WithPointer("/data/id")
	}
	if err := a.apply(req, t, res, payload); err != nil {
		return nil, err
	}
	if err := t.Handler().Save(req, res, true); err != nil {
		return nil, err
	}

	resp, err := a.resourceResponse(req, http.StatusCreated, res)
	if err != nil {
		return nil, err
	}
	resp.location = encoder.ResourceURL(req.BaseURL, t.Name, t.ID(res))
	return resp, nil
}

func (a *API) updateResource(req *request.Request, t *schema.Type, body map[string]any) (*response, error) {
	id := req.Vars["id"]
	payload, err := a.validator.ValidateResource(body, t, validator.Update, id)
	if err != nil {
		return nil, err
	}
	if err := a.includer.Validate(t, req.Params.Include); err != nil {
		return nil, err
	}

	stored, err := a.fetchOne(req, t, id)
	if err != nil {
		return nil, err
	}
	res := t.Clone(stored)
	if err := a.apply(req, t, res, payload); err != nil {
		return nil, err
	}
	if err := t.Handler().Save(req, res, false); err != nil {
		return nil, err
	}
	return a.resourceResponse(req, http.StatusOK, res)
}

func (a *API) deleteResource(req *request.Request, t *schema.Type, _ map[string]any) (*response, error) {
	if err := t.Handler().Delete(req, req.Vars["id"]); err != nil {
		return nil, err
	}
	return &response{status: http.StatusNoContent}, nil
}

func (a *API) getRelationship(req *request.Request, t *schema.Type, _ map[string]any) (*response, error) {
	rel, err := relationship(t, req.Vars["relname"])
	if err != nil {
		return nil, err
	}
	res, err := a.fetchOne(req, t, req.Vars["id"])
	if err != nil {
		return nil, err
	}
	return a.relationshipResponse(req, t, res, rel)
}

func (a *API) updateRelationship(req *request.Request, t *schema.Type, body map[string]any) (*response, error) {
	rel, err := relationship(t, req.Vars["relname"])
	if err != nil {
		return nil, err
	}
	if rel.Set == nil {
		return nil, japi.ReadOnlyField(t.Name, rel.Name, "/data")
	}
	data, err := a.validator.ValidateRelationshipDocument(body, rel)
	if err != nil {
		return nil, err
	}

	stored, err := a.fetchOne(req, t, req.Vars["id"])
	if err != nil {
		return nil, err
	}
	value, err := a.relationshipValue(req, data)
	if err != nil {
		return nil, err
	}
	res := t.Clone(stored)
	if err := rel.Set(req, res, value); err != nil {
		return nil, setterError(err, "/data")
	}
	if err := t.Handler().Save(req, res, false); err != nil {
		return nil, err
	}
	return a.relationshipResponse(req, t, res, rel)
}

func (a *API) extendRelationship(req *request.Request, t *schema.Type, body map[string]any) (*response, error) {
	return a.modifyToMany(req, t, body, true)
}

func (a *API) removeRelationship(req *request.Request, t *schema.Type, body map[string]any) (*response, error) {
	return a.modifyToMany(req, t, body, false)
}

// modifyToMany adds (add=true) or removes members of a to-many
// relationship. Types without dedicated Add/Remove functions are handled by
// reading the relationship and replacing it with Set.
func (a *API) modifyToMany(req *request.Request, t *schema.Type, body map[string]any, add bool) (*response, error) {
	rel, err := relationship(t, req.Vars["relname"])
	if err != nil {
		return nil, err
	}
	if !rel.ToMany {
		return nil, japi.Forbidden(
			fmt.Sprintf("The relationship '%s.%s' is to-one and can only be replaced.", t.Name, rel.Name),
		)
	}

	modify := rel.Remove
	if add {
		modify = rel.Add
	}
	if modify == nil && (rel.Set == nil || rel.Get == nil) {
		return nil, japi.ReadOnlyField(t.Name, rel.Name, "/data")
	}

	data, err := a.validator.ValidateRelationshipDocument(body, rel)
	if err != nil {
		return nil, err
	}
	stored, err := a.fetchOne(req, t, req.Vars["id"])
	if err != nil {
		return nil, err
	}
	values, err := a.resolve(req, data.Identifiers)
	if err != nil {
		return nil, err
	}
	res := t.Clone(stored)

	if modify != nil {
		err = modify(req, res, values)
	} else {
		err = a.replaceMembers(req, t, res, rel, data.Identifiers, values, add)
	}
	if err != nil {
		return nil, setterError(err, "/data")
	}

	if err := t.Handler().Save(req, res, false); err != nil {
		return nil, err
	}
	return a.relationshipResponse(req, t, res, rel)
}

func (a *API) replaceMembers(req *request.Request, t *schema.Type, res any, rel *schema.Relationship, idents []japi.Identifier, values []any, add bool) error {
	linkage, err := a.encoder.Linkage(req, t, res, rel)
	if err != nil {
		return err
	}
	current, err := a.resolve(req, linkage.Identifiers())
	if err != nil {
		return err
	}

	changed := make(map[string]bool, len(idents))
	for _, ident := range idents {
		changed[ident.Key()] = true
	}

	var members []any
	present := make(map[string]bool)
	for i, item := range current {
		key := linkage.Identifiers()[i].Key()
		if !add && changed[key] {
			continue
		}
		present[key] = true
		members = append(members, item)
	}
	if add {
		for i, item := range values {
			if key := idents[i].Key(); !present[key] {
				present[key] = true
				members = append(members, item)
			}
		}
	}
	return rel.Set(req, res, members)
}

func (a *API) getRelated(req *request.Request, t *schema.Type, _ map[string]any) (*response, error) {
	rel, err := relationship(t, req.Vars["relname"])
	if err != nil {
		return nil, err
	}
	if err := a.validateRelatedIncludes(req, rel); err != nil {
		return nil, err
	}

	res, err := a.fetchOne(req, t, req.Vars["id"])
	if err != nil {
		return nil, err
	}
	related, err := a.relatedResources(req, t, res, rel)
	if err != nil {
		return nil, err
	}

	if !rel.ToMany {
		var primary any
		if len(related) > 0 {
			primary = related[0]
		}
		inc, err := a.includer.Fetch(req, related, req.Params.Include)
		if err != nil {
			return nil, err
		}
		doc, err := a.encoder.ResourceDocument(req, primary, inc)
		if err != nil {
			return nil, err
		}
		return &response{status: http.StatusOK, doc: doc}, nil
	}

	var paginator pagination.Paginator
	if page := req.Params.Page; page == nil || page.Strategy != request.Cursor {
		page = a.normalizePage(req)
		total := len(related)
		start, end := page.Window(total)
		related = related[start:end]
		if page.Strategy == request.NumberSize {
			paginator = pagination.NewNumberSize(page.Number, page.Size, total)
		} else {
			paginator = pagination.NewLimitOffset(page.Limit, page.Offset, total)
		}
	}

	inc, err := a.includer.Fetch(req, related, req.Params.Include)
	if err != nil {
		return nil, err
	}
	doc, err := a.encoder.CollectionDocument(req, related, inc)
	if err != nil {
		return nil, err
	}
	if paginator != nil {
		addPagination(doc, req, paginator)
	}
	return &response{status: http.StatusOK, doc: doc}, nil
}

// relatedResources reads a relationship and loads identifiers returned by
// the getter. Dangling identifiers are skipped.
func (a *API) relatedResources(req *request.Request, t *schema.Type, res any, rel *schema.Relationship) ([]any, error) {
	if rel.Get == nil {
		return nil, nil
	}
	value, err := rel.Get(req, res)
	if err != nil {
		return nil, fmt.Errorf("get relationship %s.%s: %w", t.Name, rel.Name, err)
	}

	var items []any
	switch v := value.(type) {
	case nil:
	case []any:
		items = v
	case []japi.Identifier:
		for _, ident := range v {
			items = append(items, ident)
		}
	default:
		if !schema.IsNil(v) {
			items = []any{v}
		}
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		ident, isIdent := identifierOf(item)
		if !isIdent {
			out = append(out, item)
			continue
		}
		loaded, err := a.resolve(req, []japi.Identifier{ident})
		if err != nil {
			if japi.IsStatus(err, http.StatusNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, loaded...)
	}
	return out, nil
}

func (a *API) validateRelatedIncludes(req *request.Request, rel *schema.Relationship) error {
	if len(req.Params.Include) == 0 || len(rel.RemoteTypes) == 0 {
		return nil
	}
	var lastErr error
	for _, name := range rel.RemoteTypes {
		remote, ok := a.registry.Type(name)
		if !ok {
			continue
		}
		if lastErr = a.includer.Validate(remote, req.Params.Include); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (a *API) resourceResponse(req *request.Request, status int, res any) (*response, error) {
	inc, err := a.includer.Fetch(req, []any{res}, req.Params.Include)
	if err != nil {
		return nil, err
	}
	doc, err := a.encoder.ResourceDocument(req, res, inc)
	if err != nil {
		return nil, err
	}
	return &response{status: status, doc: doc}, nil
}

func (a *API) relationshipResponse(req *request.Request, t *schema.Type, res any, rel *schema.Relationship) (*response, error) {
	doc, err := a.encoder.RelationshipDocument(req, t, res, rel, nil)
	if err != nil {
		return nil, err
	}
	return &response{status: http.StatusOK, doc: doc}, nil
}

// fetchOne loads a single resource or fails with ResourceNotFound.
func (a *API) fetchOne(req *request.Request, t *schema.Type, id string) (any, error) {
	found, err := t.Handler().Fetch(req, []string{id})
	if err != nil {
		return nil, err
	}
	res, ok := found[id]
	if !ok || schema.IsNil(res) {
		return nil, japi.ResourceNotFound(t.Name, id)
	}
	return res, nil
}

// resolve loads identifiers, one Fetch per type, keeping their order. A
// missing resource fails with ResourceNotFound.
func (a *API) resolve(req *request.Request, idents []japi.Identifier) ([]any, error) {
	byType := make(map[string][]string)
	for _, ident := range idents {
		byType[ident.Type] = append(byType[ident.Type], ident.ID)
	}

	typeNames := make([]string, 0, len(byType))
	for name := range byType {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	loaded := make(map[string]map[string]any, len(byType))
	for _, name := range typeNames {
		t, ok := a.registry.Type(name)
		if !ok {
			return nil, japi.NotFound(fmt.Sprintf("The type '%s' does not exist.", name))
		}
		if t.Handler() == nil {
			return nil, japi.NotImplemented(fmt.Sprintf("The type '%s' has no handler.", name))
		}
		found, err := t.Handler().Fetch(req, byType[name])
		if err != nil {
			return nil, err
		}
		loaded[name] = found
	}

	out := make([]any, 0, len(idents))
	for _, ident := range idents {
		res, ok := loaded[ident.Type][ident.ID]
		if !ok || schema.IsNil(res) {
			return nil, japi.ResourceNotFound(ident.Type, ident.ID)
		}
		out = append(out, res)
	}
	return out, nil
}

// relationshipValue turns validated linkage into the value handed to a
// relationship setter.
func (a *API) relationshipValue(req *request.Request, data *validator.RelationshipData) (any, error) {
	if data.Null {
		return nil, nil
	}
	values, err := a.resolve(req, data.Identifiers)
	if err != nil {
		return nil, err
	}
	if data.Relationship.ToMany {
		if values == nil {
			values = []any{}
		}
		return values, nil
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// apply writes a validated payload into res. Relationship linkage is
// resolved before any setter runs; attributes are then set before
// relationships, each in document order.
func (a *API) apply(req *request.Request, t *schema.Type, res any, payload *validator.Payload) error {
	values := make(map[string]any, len(payload.RelKeys))
	for _, name := range payload.RelKeys {
		value, err := a.relationshipValue(req, payload.Relationships[name])
		if err != nil {
			return err
		}
		values[name] = value
	}

	for _, name := range payload.AttributeKeys {
		attr, _ := t.Attribute(name)
		pointer := "/data/attributes/" + japi.EscapeJSONPointer(name)
		if err := attr.Set(req, res, payload.Attributes[name]); err != nil {
			return setterError(err, pointer)
		}
	}

	for _, name := range payload.RelKeys {
		pointer := "/data/relationships/" + japi.EscapeJSONPointer(name)
		if err := payload.Relationships[name].Relationship.Set(req, res, values[name]); err != nil {
			return setterError(err, pointer)
		}
	}
	return nil
}

// setterError keeps JSON:API errors raised by setters, e.g. Forbidden, and
// reports every other failure as an unprocessable value.
func setterError(err error, pointer string) error {
	var jerr *japi.Error
	if errors.As(err, &jerr) {
		if jerr.SourcePointer == "" {
			jerr.SourcePointer = pointer
		}
		return jerr
	}
	var list japi.ErrorList
	if errors.As(err, &list) {
		return list
	}
	return japi.UnprocessableEntity(err.Error()).WithPointer(pointer).WithCode("validation_error")
}

func relationship(t *schema.Type, name string) (*schema.Relationship, error) {
	rel, ok := t.Relationship(name)
	if !ok {
		return nil, japi.RelationshipNotFound(t.Name, name)
	}
	return rel, nil
}

func identifierOf(value any) (japi.Identifier, bool) {
	switch v := value.(type) {
	case japi.Identifier:
		return v, true
	case *japi.Identifier:
		return *v, true
	}
	return japi.Identifier{}, false
}

// normalizePage applies the default page size and the maximum. The page is
// stored back into the request so handlers see the effective window.
func (a *API) normalizePage(req *request.Request) *request.Page {
	page := req.Params.Page
	if page == nil {
		page = &request.Page{Strategy: request.LimitOffset}
		req.Params.Page = page
	}

	if page.Limit <= 0 {
		page.Limit = a.defaultPageSize
	}
	if a.maxPageSize > 0 && page.Limit > a.maxPageSize {
		page.Limit = a.maxPageSize
	}
	if page.Strategy == request.NumberSize {
		page.Size = page.Limit
		page.Offset = page.Number * page.Size
	}
	return page
}

func addPagination(doc *japi.Document, req *request.Request, p pagination.Paginator) {
	if doc.Links == nil {
		doc.Links = make(map[string]any)
	}
	for name, href := range pagination.LinksMap(p.Links(req.AbsoluteURL())) {
		doc.Links[name] = href
	}
	if doc.Meta == nil {
		doc.Meta = make(map[string]any)
	}
	for k, v := range p.Meta() {
		doc.Meta[k] = v
	}
}

// checkSortAndFilter rejects sort and filter parameters the type does not
// declare. Every offending parameter is reported.
func checkSortAndFilter(req *request.Request, t *schema.Type) error {
	var errs japi.ErrorList

	for _, s := range req.Params.Sort {
		if len(s.Field) == 1 && s.Field[0] == "id" {
			continue
		}
		attr, ok := t.Attribute(s.Field[0])
		if len(s.Field) != 1 || !ok || !attr.IsSortable() {
			errs.Add(japi.UnsortableField(t.Name, s.Path()))
		}
	}

	for _, f := range req.Params.Filters {
		if f.Field == "id" && (f.Op == "eq" || f.Op == "in") {
			continue
		}
		attr, ok := t.Attribute(f.Field)
		if !ok || !attr.AllowsFilter(f.Op) {
			errs.Add(japi.UnfilterableField(t.Name, f.Field, f.Op))
		}
	}

	return errs.ErrOrNil()
}
