// Package includer resolves include paths into the related resources of a
// compound document.
package includer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

// MaxDepth limits the number of segments of an include path.
const MaxDepth = 10

// ErrNoHandler is returned when identifiers of a type without handler must
// be loaded.
var ErrNoHandler = errors.New("includer: type has no handler")

// Entry is a resource together with its type.
type Entry struct {
	Type     *schema.Type
	Resource any
	ID       japi.Identifier
}

// Result holds the resources found by Fetch.
type Result struct {
	// Included lists related resources in discovery order. Primary
	// resources are never part of it.
	Included []Entry
	// linkage records, per type name, which relationships were followed.
	linkage map[string]map[string]bool
}

// Traversed reports whether relationship rel of typeName was followed by
// some include path, in which case its linkage must be rendered.
func (r *Result) Traversed(typeName, rel string) bool {
	if r == nil {
		return false
	}
	return r.linkage[typeName][rel]
}

func (r *Result) markTraversed(typeName, rel string) {
	if r.linkage[typeName] == nil {
		r.linkage[typeName] = make(map[string]bool)
	}
	r.linkage[typeName][rel] = true
}

// Includer walks include paths through the types of a registry.
type Includer struct {
	registry    *schema.Registry
	logger      *zap.Logger
	concurrency int
}

// Option configures an Includer.
type Option func(*Includer)

// WithConcurrency bounds the number of types fetched in parallel.
func WithConcurrency(n int) Option {
	return func(i *Includer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// New creates an includer. A nil logger disables logging.
func New(registry *schema.Registry, logger *zap.Logger, opts ...Option) *Includer {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Includer{
		registry:    registry,
		logger:      logger,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PathExists reports whether path follows declared relationships starting
// at t. Relationships without remote types can not be checked further and
// are accepted with a warning.
func (i *Includer) PathExists(t *schema.Type, path []string) bool {
	return i.pathExists(t, path, path)
}

func (i *Includer) pathExists(t *schema.Type, rest, full []string) bool {
	if len(rest) == 0 {
		return true
	}

	rel, ok := t.Relationship(rest[0])
	if !ok {
		return false
	}
	if len(rest) == 1 {
		return true
	}

	if len(rel.RemoteTypes) == 0 {
		i.logger.Warn("include path can not be verified, relationship has no remote types",
			zap.String("type", t.Name),
			zap.String("relationship", rel.Name),
			zap.String("path", strings.Join(full, ".")),
		)
		return true
	}

	for _, remote := range rel.RemoteTypes {
		remoteType, ok := i.registry.Type(remote)
		if !ok {
			continue
		}
		if i.pathExists(remoteType, rest[1:], full) {
			return true
		}
	}
	return false
}

// Validate checks every path and returns UnresolvableIncludePath for the
// first one that does not exist.
func (i *Includer) Validate(t *schema.Type, paths [][]string) error {
	for _, path := range paths {
		if len(path) > MaxDepth {
			return japi.BadRequest(
				fmt.Sprintf("The include path '%s' is deeper than %d relationships.", strings.Join(path, "."), MaxDepth),
			).WithParameter("include")
		}
		if !i.PathExists(t, path) {
			return japi.UnresolvableIncludePath(strings.Join(path, "."))
		}
	}
	return nil
}

// Fetch loads every resource reachable from primary via paths. Paths should
// have been checked with Validate first.
func (i *Includer) Fetch(req *request.Request, primary []any, paths [][]string) (*Result, error) {
	result := &Result{linkage: make(map[string]map[string]bool)}
	if len(primary) == 0 || len(paths) == 0 {
		return result, nil
	}

	roots := make([]Entry, 0, len(primary))
	seen := make(map[string]bool)
	for _, res := range primary {
		entry, err := i.entry(res)
		if err != nil {
			return nil, err
		}
		seen[entry.ID.Key()] = true
		roots = append(roots, entry)
	}

	fetched := newCache()
	for _, path := range paths {
		level := roots
		for _, segment := range path {
			if err := req.Context().Err(); err != nil {
				return nil, err
			}

			next, err := i.step(req, level, segment, result, fetched)
			if err != nil {
				return nil, err
			}
			for _, entry := range next {
				key := entry.ID.Key()
				if seen[key] {
					continue
				}
				seen[key] = true
				result.Included = append(result.Included, entry)
			}
			level = next
			if len(level) == 0 {
				break
			}
		}
	}

	return result, nil
}

// step follows one relationship from every entry of level and returns the
// related resources, deduplicated.
func (i *Includer) step(req *request.Request, level []Entry, segment string, result *Result, fetched *cache) ([]Entry, error) {
	var (
		next    []Entry
		inLevel = make(map[string]bool)
		pending []japi.Identifier
	)

	add := func(entry Entry) {
		if key := entry.ID.Key(); !inLevel[key] {
			inLevel[key] = true
			next = append(next, entry)
		}
	}

	for _, parent := range level {
		rel, ok := parent.Type.Relationship(segment)
		if !ok {
			// Polymorphic levels may mix types which lack the relationship.
			continue
		}
		result.markTraversed(parent.Type.Name, segment)
		if rel.Get == nil {
			continue
		}

		value, err := rel.Get(req, parent.Resource)
		if err != nil {
			return nil, fmt.Errorf("get relationship %s.%s: %w", parent.Type.Name, segment, err)
		}

		for _, item := range flatten(value) {
			if ident, ok := asIdentifier(item); ok {
				if entry, ok := fetched.get(ident); ok {
					add(entry)
					continue
				}
				pending = append(pending, ident)
				continue
			}
			entry, err := i.entry(item)
			if err != nil {
				return nil, err
			}
			fetched.put(entry)
			add(entry)
		}
	}

	if len(pending) > 0 {
		loaded, err := i.load(req, pending, fetched)
		if err != nil {
			return nil, err
		}
		for _, entry := range loaded {
			add(entry)
		}
	}

	return next, nil
}

// load fetches identifiers through the handlers of their types, one batch
// per type, the types in parallel.
func (i *Includer) load(req *request.Request, idents []japi.Identifier, fetched *cache) ([]Entry, error) {
	byType := make(map[string][]string)
	seen := make(map[string]bool)
	for _, ident := range idents {
		if seen[ident.Key()] {
			continue
		}
		seen[ident.Key()] = true
		byType[ident.Type] = append(byType[ident.Type], ident.ID)
	}

	typeNames := make([]string, 0, len(byType))
	for name := range byType {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	var mu sync.Mutex
	loaded := make(map[string]map[string]any, len(byType))

	p := pool.New().
		WithContext(req.Context()).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(i.concurrency)

	for _, name := range typeNames {
		t, ok := i.registry.Type(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", schema.ErrUnknownType, name)
		}
		if t.Handler() == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
		}
		ids := byType[name]

		p.Go(func(ctx context.Context) error {
			resources, err := t.Handler().Fetch(req.WithContext(ctx), ids)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", t.Name, err)
			}
			mu.Lock()
			loaded[t.Name] = resources
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(idents))
	for _, ident := range idents {
		if entry, ok := fetched.get(ident); ok {
			entries = append(entries, entry)
			continue
		}
		t, _ := i.registry.Type(ident.Type)
		res, ok := loaded[ident.Type][ident.ID]
		if !ok {
			i.logger.Debug("related resource does not exist",
				zap.String("type", ident.Type),
				zap.String("id", ident.ID),
			)
			continue
		}
		entry := Entry{Type: t, Resource: res, ID: ident}
		fetched.put(entry)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (i *Includer) entry(resource any) (Entry, error) {
	t, err := i.registry.TypeOf(resource)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Type:     t,
		Resource: resource,
		ID:       japi.Identifier{Type: t.Name, ID: t.ID(resource)},
	}, nil
}

// flatten turns a getter result into a list, dropping nil values.
func flatten(value any) []any {
	if schema.IsNil(value) {
		return nil
	}
	switch v := value.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if !schema.IsNil(item) {
				out = append(out, item)
			}
		}
		return out
	case []japi.Identifier:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out
	default:
		return []any{value}
	}
}

func asIdentifier(value any) (japi.Identifier, bool) {
	switch v := value.(type) {
	case japi.Identifier:
		return v, true
	case *japi.Identifier:
		return *v, true
	}
	return japi.Identifier{}, false
}

// cache remembers resources already loaded during one Fetch.
type cache struct {
	entries map[string]Entry
}

func newCache() *cache {
	return &cache{entries: make(map[string]Entry)}
}

func (c *cache) get(ident japi.Identifier) (Entry, bool) {
	e, ok := c.entries[ident.Key()]
	return e, ok
}

func (c *cache) put(e Entry) {
	c.entries[e.ID.Key()] = e
}
