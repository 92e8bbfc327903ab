package pagination

import (
	"net/url"
	"testing"

	"github.com/DataDog/jsonapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func query(t *testing.T, link any) url.Values {
	t.Helper()
	s, ok := link.(string)
	require.True(t, ok, "link is %T", link)
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u.Query()
}

func TestPageLink_KeepsOtherParameters(t *testing.T) {
	uri := mustURL(t, "http://example.org/posts?sort=title&page[offset]=5&filter[views]=gt:1")
	link := PageLink(uri, map[string]string{"limit": "10", "offset": "20"})

	q := query(t, link)
	assert.Equal(t, "title", q.Get("sort"))
	assert.Equal(t, "gt:1", q.Get("filter[views]"))
	assert.Equal(t, "10", q.Get("page[limit]"))
	assert.Equal(t, "20", q.Get("page[offset]"))
}

func TestLimitOffset_Links(t *testing.T) {
	uri := mustURL(t, "http://example.org/posts")

	tests := []struct {
		name                 string
		limit, offset, total int
		prev, next           string
		last                 string
	}{
		{name: "first page", limit: 10, offset: 0, total: 25, next: "10", last: "20"},
		{name: "middle page", limit: 10, offset: 10, total: 25, prev: "0", next: "20", last: "20"},
		{name: "last page", limit: 10, offset: 20, total: 25, prev: "10", last: "20"},
		{name: "exact multiple", limit: 5, offset: 0, total: 10, next: "5", last: "5"},
		{name: "empty", limit: 10, offset: 0, total: 0, last: "0"},
		{name: "short prev", limit: 10, offset: 4, total: 25, prev: "0", next: "14", last: "20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := NewLimitOffset(tt.limit, tt.offset, tt.total).Links(uri)

			assert.Equal(t, "0", query(t, links.First).Get("page[offset]"))
			assert.Equal(t, tt.last, query(t, links.Last).Get("page[offset]"))

			if tt.prev == "" {
				assert.Empty(t, links.Previous)
			} else {
				assert.Equal(t, tt.prev, query(t, links.Previous).Get("page[offset]"))
			}
			if tt.next == "" {
				assert.Empty(t, links.Next)
			} else {
				assert.Equal(t, tt.next, query(t, links.Next).Get("page[offset]"))
			}
		})
	}
}

func TestLimitOffset_Defaults(t *testing.T) {
	p := NewLimitOffset(0, -3, 4)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, map[string]any{
		"total-resources": 4,
		"page-limit":      DefaultLimit,
		"page-offset":     0,
	}, p.Meta())
}

func TestNumberSize_Links(t *testing.T) {
	uri := mustURL(t, "http://example.org/posts")

	p := NewNumberSize(1, 10, 25)
	assert.Equal(t, 2, p.LastPage())

	links := p.Links(uri)
	assert.Equal(t, "1", query(t, links.Self).Get("page[number]"))
	assert.Equal(t, "0", query(t, links.Previous).Get("page[number]"))
	assert.Equal(t, "2", query(t, links.Next).Get("page[number]"))
	assert.Equal(t, "2", query(t, links.Last).Get("page[number]"))
	assert.Equal(t, "10", query(t, links.First).Get("page[size]"))

	last := NewNumberSize(2, 10, 25).Links(uri)
	assert.Empty(t, last.Next)

	assert.Equal(t, 0, NewNumberSize(0, 10, 0).LastPage())
	assert.Equal(t, 2, NewNumberSize(1, 10, 25).Meta()["last-page"])
}

func TestCursor_Links(t *testing.T) {
	uri := mustURL(t, "http://example.org/posts")

	p := NewCursor(0, "", "", "c2")
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, FirstCursor, p.Current)

	links := p.Links(uri)
	assert.Equal(t, FirstCursor, query(t, links.First).Get("page[cursor]"))
	assert.Equal(t, LastCursor, query(t, links.Last).Get("page[cursor]"))
	assert.Equal(t, "c2", query(t, links.Next).Get("page[cursor]"))
	assert.Empty(t, links.Previous)
}

func TestLinksMap(t *testing.T) {
	assert.Empty(t, LinksMap(nil))

	out := LinksMap(&jsonapi.Link{Self: "s", First: "f", Next: ""})
	assert.Equal(t, map[string]any{"self": "s", "first": "f"}, out)

	out = LinksMap(&jsonapi.Link{Self: "s", Previous: "p", Next: "n"})
	assert.Equal(t, map[string]any{"self": "s", "prev": "p", "next": "n"}, out)
}
