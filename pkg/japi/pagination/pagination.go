// Package pagination builds the links and meta members of paginated
// collection documents.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/DataDog/jsonapi"
)

// DefaultLimit is the page size used when a client does not ask for one.
const DefaultLimit = 25

// Paginator describes the pagination of a collection response.
type Paginator interface {
	Links(uri *url.URL) *jsonapi.Link
	Meta() map[string]any
}

// PageLink returns uri with the page[...] parameters replaced by page. All
// other query parameters are kept.
func PageLink(uri *url.URL, page map[string]string) string {
	u := *uri
	q := u.Query()
	for key := range q {
		if len(key) > 5 && key[:5] == "page[" {
			q.Del(key)
		}
	}
	for key, value := range page {
		q.Set("page["+key+"]", value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LimitOffset paginates with page[limit] and page[offset].
type LimitOffset struct {
	Limit  int
	Offset int
	Total  int
}

// NewLimitOffset applies DefaultLimit when limit is not positive.
func NewLimitOffset(limit, offset, total int) *LimitOffset {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return &LimitOffset{Limit: limit, Offset: offset, Total: total}
}

func (p *LimitOffset) link(uri *url.URL, offset int) string {
	return PageLink(uri, map[string]string{
		"limit":  strconv.Itoa(p.Limit),
		"offset": strconv.Itoa(offset),
	})
}

// Links returns self, first, last and, where they exist, prev and next.
func (p *LimitOffset) Links(uri *url.URL) *jsonapi.Link {
	links := &jsonapi.Link{
		Self:  p.link(uri, p.Offset),
		First: p.link(uri, 0),
		Last:  p.link(uri, p.lastOffset()),
	}

	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links.Previous = p.link(uri, prev)
	}

	if p.Offset+p.Limit < p.Total {
		links.Next = p.link(uri, p.Offset+p.Limit)
	}

	return links
}

func (p *LimitOffset) lastOffset() int {
	if p.Total <= 0 {
		return 0
	}
	return ((p.Total - 1) / p.Limit) * p.Limit
}

// Meta returns total-resources, page-limit and page-offset.
func (p *LimitOffset) Meta() map[string]any {
	return map[string]any{
		"total-resources": p.Total,
		"page-limit":      p.Limit,
		"page-offset":     p.Offset,
	}
}

// NumberSize paginates with page[number] and page[size]. Numbers start at 0.
type NumberSize struct {
	Number int
	Size   int
	Total  int
}

// NewNumberSize applies DefaultLimit when size is not positive.
func NewNumberSize(number, size, total int) *NumberSize {
	if size <= 0 {
		size = DefaultLimit
	}
	if number < 0 {
		number = 0
	}
	return &NumberSize{Number: number, Size: size, Total: total}
}

// LastPage returns the number of the last page.
func (p *NumberSize) LastPage() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Total - 1) / p.Size
}

func (p *NumberSize) link(uri *url.URL, number int) string {
	return PageLink(uri, map[string]string{
		"number": strconv.Itoa(number),
		"size":   strconv.Itoa(p.Size),
	})
}

// Links returns self, first, last and, where they exist, prev and next.
func (p *NumberSize) Links(uri *url.URL) *jsonapi.Link {
	last := p.LastPage()
	links := &jsonapi.Link{
		Self:  p.link(uri, p.Number),
		First: p.link(uri, 0),
		Last:  p.link(uri, last),
	}
	if p.Number > 0 {
		prev := p.Number - 1
		if prev > last {
			prev = last
		}
		links.Previous = p.link(uri, prev)
	}
	if p.Number < last {
		links.Next = p.link(uri, p.Number+1)
	}
	return links
}

// Meta returns total-resources, last-page, page-number and page-size.
func (p *NumberSize) Meta() map[string]any {
	return map[string]any{
		"total-resources": p.Total,
		"last-page":       p.LastPage(),
		"page-number":     p.Number,
		"page-size":       p.Size,
	}
}

// Cursor sentinels for the first and last page.
const (
	FirstCursor = "FIRST"
	LastCursor  = "LAST"
)

// Cursor paginates with an opaque page[cursor]. Prev and Next are the
// cursors of the neighbouring pages; empty means there is none.
type Cursor struct {
	Limit   int
	Current string
	Prev    string
	Next    string
}

// NewCursor applies DefaultLimit when limit is not positive.
func NewCursor(limit int, current, prev, next string) *Cursor {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if current == "" {
		current = FirstCursor
	}
	return &Cursor{Limit: limit, Current: current, Prev: prev, Next: next}
}

func (p *Cursor) link(uri *url.URL, cursor string) string {
	return PageLink(uri, map[string]string{
		"cursor": cursor,
		"limit":  strconv.Itoa(p.Limit),
	})
}

// Links returns self, first, last and prev/next when their cursors are known.
func (p *Cursor) Links(uri *url.URL) *jsonapi.Link {
	links := &jsonapi.Link{
		Self:  p.link(uri, p.Current),
		First: p.link(uri, FirstCursor),
		Last:  p.link(uri, LastCursor),
	}
	if p.Prev != "" {
		links.Previous = p.link(uri, p.Prev)
	}
	if p.Next != "" {
		links.Next = p.link(uri, p.Next)
	}
	return links
}

// Meta returns page-limit.
func (p *Cursor) Meta() map[string]any {
	return map[string]any{"page-limit": p.Limit}
}

// LinksMap flattens a links object into the map form used by documents,
// dropping empty members.
func LinksMap(links *jsonapi.Link) map[string]any {
	out := make(map[string]any)
	if links == nil {
		return out
	}
	members := map[string]any{
		"self":    links.Self,
		"related": links.Related,
		"first":   links.First,
		"last":    links.Last,
		"prev":    links.Previous,
		"next":    links.Next,
	}
	for name, value := range members {
		if s, ok := value.(string); ok && s != "" {
			out[name] = s
		}
	}
	return out
}
