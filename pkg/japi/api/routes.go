package api

import (
	"net/http"

	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// Operation identifies an endpoint of a type.
type Operation int

const (
	OpGetCollection Operation = iota
	OpCreateResource
	OpGetResource
	OpUpdateResource
	OpDeleteResource
	OpGetRelationship
	OpUpdateRelationship
	OpExtendRelationship
	OpRemoveRelationship
	OpGetRelated
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OpGetCollection:
		return "get_collection"
	case OpCreateResource:
		return "create_resource"
	case OpGetResource:
		return "get_resource"
	case OpUpdateResource:
		return "update_resource"
	case OpDeleteResource:
		return "delete_resource"
	case OpGetRelationship:
		return "get_relationship"
	case OpUpdateRelationship:
		return "update_relationship"
	case OpExtendRelationship:
		return "extend_relationship"
	case OpRemoveRelationship:
		return "remove_relationship"
	case OpGetRelated:
		return "get_related"
	default:
		return "unknown"
	}
}

// hasBody reports whether requests of the operation carry a document.
func (o Operation) hasBody() bool {
	switch o {
	case OpCreateResource, OpUpdateResource, OpUpdateRelationship, OpExtendRelationship, OpRemoveRelationship:
		return true
	}
	return false
}

// RouteInfo describes a registered endpoint for introspection.
type RouteInfo struct {
	Method    string
	Pattern   string
	Type      string
	Operation Operation
}

// Routes lists every endpoint in registration order. Relationship
// endpoints are expanded per declared relationship; to-one relationships
// only support GET and PATCH.
func (a *API) Routes() []RouteInfo {
	var routes []RouteInfo
	for _, t := range a.registry.Types() {
		routes = append(routes, typeRoutes(a.prefix, t)...)
	}
	return routes
}

func typeRoutes(prefix string, t *schema.Type) []RouteInfo {
	base := prefix + "/" + t.Name
	item := base + "/{id}"

	routes := []RouteInfo{
		{http.MethodGet, base, t.Name, OpGetCollection},
		{http.MethodPost, base, t.Name, OpCreateResource},
		{http.MethodGet, item, t.Name, OpGetResource},
		{http.MethodPatch, item, t.Name, OpUpdateResource},
		{http.MethodDelete, item, t.Name, OpDeleteResource},
	}

	for _, rel := range t.RelationshipList() {
		relPath := item + "/relationships/" + rel.Name
		routes = append(routes,
			RouteInfo{http.MethodGet, relPath, t.Name, OpGetRelationship},
			RouteInfo{http.MethodPatch, relPath, t.Name, OpUpdateRelationship},
		)
		if rel.ToMany {
			routes = append(routes,
				RouteInfo{http.MethodPost, relPath, t.Name, OpExtendRelationship},
				RouteInfo{http.MethodDelete, relPath, t.Name, OpRemoveRelationship},
			)
		}
		routes = append(routes, RouteInfo{http.MethodGet, item + "/" + rel.Name, t.Name, OpGetRelated})
	}
	return routes
}
