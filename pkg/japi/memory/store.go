// Package memory provides an in-memory schema.Handler. It keeps resources
// in insertion order and evaluates filters, sorting and paging through the
// type's attribute getters.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/pagination"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// Store is an in-memory handler for a single type. It is safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	t     *schema.Type
	items map[string]any
	order []string
	newID func() string
}

// New creates a store for t and installs it as t's handler.
func New(t *schema.Type) *Store {
	s := &Store{
		t:     t,
		items: make(map[string]any),
		newID: func() string { return uuid.New().String() },
	}
	t.WithHandler(s)
	return s
}

// WithIDGenerator replaces the uuid generator used for new resources.
func (s *Store) WithIDGenerator(newID func() string) *Store {
	s.newID = newID
	return s
}

// Put inserts or replaces resources without going through the API.
func (s *Store) Put(resources ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range resources {
		s.put(res)
	}
}

func (s *Store) put(res any) {
	id := s.t.ID(res)
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = res
}

// Len returns the number of stored resources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Collection filters, sorts and pages the stored resources.
func (s *Store) Collection(req *request.Request) ([]any, int, error) {
	matched, err := s.query(req)
	if err != nil {
		return nil, 0, err
	}
	total := len(matched)
	start, end := req.Params.Page.Window(total)
	return matched[start:end], total, nil
}

// CursorPage pages through the resources in query order. The cursor is the
// id of the last resource of the previous page.
func (s *Store) CursorPage(req *request.Request) ([]any, string, string, error) {
	matched, err := s.query(req)
	if err != nil {
		return nil, "", "", err
	}

	limit := pagination.DefaultLimit
	cursor := pagination.FirstCursor
	if page := req.Params.Page; page != nil {
		if page.Limit > 0 {
			limit = page.Limit
		}
		if page.Cursor != "" {
			cursor = page.Cursor
		}
	}

	start := 0
	switch cursor {
	case pagination.FirstCursor:
	case pagination.LastCursor:
		start = len(matched) - limit
		if start < 0 {
			start = 0
		}
	default:
		start = -1
		for i, res := range matched {
			if s.t.ID(res) == cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, "", "", japi.BadRequest(
				fmt.Sprintf("The cursor '%s' is unknown.", cursor),
			).WithParameter("page[cursor]")
		}
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	window := matched[start:end]

	var prev, next string
	if start > 0 {
		prev = pagination.FirstCursor
		if start-limit > 0 {
			prev = s.t.ID(matched[start-limit-1])
		}
	}
	if end < len(matched) && len(window) > 0 {
		next = s.t.ID(window[len(window)-1])
	}
	return window, prev, next, nil
}

func (s *Store) query(req *request.Request) ([]any, error) {
	s.mu.RLock()
	all := make([]any, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.items[id])
	}
	s.mu.RUnlock()

	var matched []any
	for _, res := range all {
		ok, err := s.match(req, res)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, res)
		}
	}

	if len(req.Params.Sort) > 0 {
		var sortErr error
		sort.SliceStable(matched, func(i, j int) bool {
			for _, key := range req.Params.Sort {
				a, err := s.value(req, matched[i], key.Path())
				if err != nil {
					sortErr = err
					return false
				}
				b, err := s.value(req, matched[j], key.Path())
				if err != nil {
					sortErr = err
					return false
				}
				if c := compare(a, b); c != 0 {
					if key.Desc {
						return c > 0
					}
					return c < 0
				}
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	return matched, nil
}

func (s *Store) match(req *request.Request, res any) (bool, error) {
	for _, f := range req.Params.Filters {
		value, err := s.value(req, res, f.Field)
		if err != nil {
			return false, err
		}
		if !matches(value, f) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) value(req *request.Request, res any, field string) (any, error) {
	if field == "id" {
		return s.t.ID(res), nil
	}
	attr, ok := s.t.Attribute(field)
	if !ok || attr.Get == nil {
		return nil, japi.UnfilterableField(s.t.Name, field, "eq")
	}
	return attr.Get(req, res)
}

// Fetch returns the stored resources with the given ids.
func (s *Store) Fetch(_ *request.Request, ids []string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]any, len(ids))
	for _, id := range ids {
		if res, ok := s.items[id]; ok {
			found[id] = res
		}
	}
	return found, nil
}

// Save stores res, assigning a new id to created resources without one.
func (s *Store) Save(_ *request.Request, res any, created bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if created {
		id := s.t.ID(res)
		if id == "" {
			if !s.t.SetID(res, s.newID()) {
				return fmt.Errorf("memory: type %q has no id setter", s.t.Name)
			}
		} else if _, exists := s.items[id]; exists {
			return japi.Conflict(fmt.Sprintf("The resource (type='%s', id='%s') already exists.", s.t.Name, id))
		}
	}
	s.put(res)
	return nil
}

// Delete removes the resource with the given id.
func (s *Store) Delete(_ *request.Request, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return japi.ResourceNotFound(s.t.Name, id)
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
