package memory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/pagination"
	"github.com/conduit-lang/japi/pkg/japi/request"
	"github.com/conduit-lang/japi/pkg/japi/schema"
)

type item struct {
	ID        string
	Name      string
	Rank      int
	CreatedAt time.Time
}

func newStore(t *testing.T) *Store {
	t.Helper()
	typ := schema.NewType[*item]("items",
		func(i *item) string { return i.ID },
		func(i *item, id string) { i.ID = id },
	).Attributes(
		schema.Attr("name", func(i *item) string { return i.Name }, func(i *item, v string) { i.Name = v }),
		schema.Attr("rank", func(i *item) int { return i.Rank }, func(i *item, v int) { i.Rank = v }),
		schema.Attr("created-at", func(i *item) time.Time { return i.CreatedAt }, nil),
	)

	store := New(typ)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Put(
		&item{ID: "1", Name: "delta", Rank: 3, CreatedAt: base.Add(3 * time.Hour)},
		&item{ID: "2", Name: "alpha", Rank: 1, CreatedAt: base.Add(1 * time.Hour)},
		&item{ID: "3", Name: "charlie", Rank: 2, CreatedAt: base.Add(2 * time.Hour)},
		&item{ID: "4", Name: "bravo", Rank: 2, CreatedAt: base},
	)
	return store
}

func newRequest(t *testing.T, rawQuery string) *request.Request {
	t.Helper()
	query, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	params, err := request.Parse(query)
	require.NoError(t, err)
	return request.NewFromContext(context.Background(), params, "")
}

func itemIDs(resources []any) []string {
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.(*item).ID)
	}
	return out
}

func TestCollection_InsertionOrder(t *testing.T) {
	store := newStore(t)
	items, total, err := store.Collection(newRequest(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"1", "2", "3", "4"}, itemIDs(items))
}

func TestCollection_Sort(t *testing.T) {
	store := newStore(t)

	tests := []struct {
		sort     string
		expected []string
	}{
		{"name", []string{"2", "4", "3", "1"}},
		{"-name", []string{"1", "3", "4", "2"}},
		{"rank,name", []string{"2", "4", "3", "1"}},
		{"-rank,-name", []string{"1", "3", "4", "2"}},
		{"created-at", []string{"4", "2", "3", "1"}},
		{"-id", []string{"4", "3", "2", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			items, _, err := store.Collection(newRequest(t, "sort="+tt.sort))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, itemIDs(items))
		})
	}
}

func TestCollection_Filter(t *testing.T) {
	store := newStore(t)

	tests := []struct {
		filter   string
		expected []string
	}{
		{"filter[name]=alpha", []string{"2"}},
		{"filter[rank]=2", []string{"3", "4"}},
		{"filter[rank]=gt:1", []string{"1", "3", "4"}},
		{"filter[rank]=lte:2&filter[name]=startswith:\"b\"", []string{"4"}},
		{"filter[name]=contains:\"a\"", []string{"1", "2", "3", "4"}},
		{"filter[name]=endswith:\"o\"", []string{"4"}},
		{"filter[id]=in:[\"1\",\"3\"]", []string{"1", "3"}},
		{"filter[id]=nin:[\"1\",\"3\"]", []string{"2", "4"}},
		{"filter[rank]=ne:2", []string{"1", "2"}},
		{"filter[created-at]=lt:\"2024-01-01T02:00:00Z\"", []string{"2", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			items, total, err := store.Collection(newRequest(t, tt.filter))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, itemIDs(items))
			assert.Equal(t, len(tt.expected), total)
		})
	}
}

func TestCollection_UnknownField(t *testing.T) {
	store := newStore(t)
	_, _, err := store.Collection(newRequest(t, "filter[color]=red"))
	require.Error(t, err)
	assert.True(t, japi.IsStatus(err, http.StatusBadRequest))
}

func TestCollection_Window(t *testing.T) {
	store := newStore(t)
	items, total, err := store.Collection(newRequest(t, "sort=name&page[offset]=1&page[limit]=2"))
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"4", "3"}, itemIDs(items))
}

func TestCursorPage(t *testing.T) {
	store := newStore(t)

	items, prev, next, err := store.CursorPage(newRequest(t, "page[cursor]="+pagination.FirstCursor+"&page[limit]=3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, itemIDs(items))
	assert.Empty(t, prev)
	assert.Equal(t, "3", next)

	items, prev, next, err = store.CursorPage(newRequest(t, "page[cursor]=3&page[limit]=3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, itemIDs(items))
	assert.Equal(t, pagination.FirstCursor, prev)
	assert.Empty(t, next)

	items, _, _, err = store.CursorPage(newRequest(t, "page[cursor]="+pagination.LastCursor+"&page[limit]=2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, itemIDs(items))

	items, prev, _, err = store.CursorPage(newRequest(t, "page[cursor]=3&page[limit]=1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, itemIDs(items))
	assert.Equal(t, "2", prev)

	_, _, _, err = store.CursorPage(newRequest(t, "page[cursor]=nope"))
	require.Error(t, err)
	assert.True(t, japi.IsStatus(err, http.StatusBadRequest))
}

func TestSave(t *testing.T) {
	store := newStore(t)
	store.WithIDGenerator(func() string { return "generated" })
	req := newRequest(t, "")

	created := &item{Name: "echo"}
	require.NoError(t, store.Save(req, created, true))
	assert.Equal(t, "generated", created.ID)
	assert.Equal(t, 5, store.Len())

	err := store.Save(req, &item{ID: "1"}, true)
	assert.True(t, japi.IsStatus(err, http.StatusConflict))

	updated := &item{ID: "2", Name: "alpha2"}
	require.NoError(t, store.Save(req, updated, false))
	found, err := store.Fetch(req, []string{"2", "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Same(t, updated, found["2"])
}

func TestDelete(t *testing.T) {
	store := newStore(t)
	req := newRequest(t, "")

	require.NoError(t, store.Delete(req, "2"))
	assert.Equal(t, 3, store.Len())

	items, _, err := store.Collection(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, itemIDs(items))

	err = store.Delete(req, "2")
	assert.True(t, japi.IsStatus(err, http.StatusNotFound))
}

func TestStore_Concurrent(t *testing.T) {
	store := newStore(t)
	req := newRequest(t, "")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			_ = store.Save(req, &item{ID: fmt.Sprintf("c%d", i)}, true)
			_, _, _ = store.Collection(req)
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 12, store.Len())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, compare(nil, nil))
	assert.Equal(t, -1, compare(nil, 1))
	assert.Equal(t, 1, compare(1, nil))
	assert.Equal(t, -1, compare(1, 2.5))
	assert.Equal(t, 0, compare(int64(2), float64(2)))
	assert.Equal(t, -1, compare(false, true))
	assert.Equal(t, 0, compare(2, "2"))
	assert.Equal(t, 1, compare("b", "a"))
}
