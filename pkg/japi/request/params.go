package request

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/japi/pkg/japi"
)

// fieldsPattern matches query parameters like fields[typename]
var fieldsPattern = regexp.MustCompile(`^fields\[([A-Za-z0-9_-]+)\]$`)

// filterPattern matches query parameters like filter[field]
var filterPattern = regexp.MustCompile(`^filter\[([A-Za-z0-9_.-]+)\]$`)

// pagePattern matches query parameters like page[size]
var pagePattern = regexp.MustCompile(`^page\[([A-Za-z0-9_-]*)\]$`)

// filterRulePattern splits filter values like gt:10
var filterRulePattern = regexp.MustCompile(`^([a-z]+):(.*)$`)

// Operators lists the filter operators understood in filter[field]=op:rule.
var Operators = map[string]bool{
	"eq":         true,
	"ne":         true,
	"lt":         true,
	"lte":        true,
	"gt":         true,
	"gte":        true,
	"in":         true,
	"nin":        true,
	"contains":   true,
	"startswith": true,
	"endswith":   true,
}

// SortField is one entry of the sort parameter.
type SortField struct {
	Field []string
	Desc  bool
}

// Path returns the dotted field path.
func (s SortField) Path() string {
	return strings.Join(s.Field, ".")
}

func (s SortField) String() string {
	if s.Desc {
		return "-" + s.Path()
	}
	return s.Path()
}

// Filter is one filter[field] parameter.
type Filter struct {
	Field string
	Op    string
	// Value is the JSON decoded rule, or the raw string for eq filters
	// written without an operator.
	Value any
}

// Strategy selects how a collection is paginated.
type Strategy int

const (
	LimitOffset Strategy = iota
	NumberSize
	Cursor
)

func (s Strategy) String() string {
	switch s {
	case NumberSize:
		return "number-size"
	case Cursor:
		return "cursor"
	default:
		return "limit-offset"
	}
}

// Page holds the page[...] parameters. Limit and Offset are always set, the
// number/size form is converted on parse.
type Page struct {
	Strategy Strategy
	Offset   int
	Limit    int
	Number   int
	Size     int
	Cursor   string
}

// Window returns the half-open range [start, end) of a collection with total
// elements which the page selects. A zero limit selects everything from the
// offset.
func (p *Page) Window(total int) (int, int) {
	if p == nil {
		return 0, total
	}
	start := p.Offset
	if start > total {
		start = total
	}
	end := total
	if p.Limit > 0 && start+p.Limit < total {
		end = start + p.Limit
	}
	return start, end
}

// Params is the structured form of the JSON:API query parameters.
type Params struct {
	Include [][]string
	Fields  map[string][]string
	Sort    []SortField
	Filters []Filter
	Page    *Page
	// Extra holds every query parameter that is not a JSON:API parameter.
	Extra url.Values
}

// IncludePaths returns the include paths in their dotted form.
func (p *Params) IncludePaths() []string {
	paths := make([]string, 0, len(p.Include))
	for _, path := range p.Include {
		paths = append(paths, strings.Join(path, "."))
	}
	return paths
}

// HasFieldset reports whether a sparse fieldset was requested for typeName.
func (p *Params) HasFieldset(typeName string) bool {
	_, ok := p.Fields[typeName]
	return ok
}

// FieldRequested reports whether field of typeName should be rendered.
func (p *Params) FieldRequested(typeName, field string) bool {
	fields, ok := p.Fields[typeName]
	if !ok {
		return true
	}
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// FiltersFor returns the filters on field.
func (p *Params) FiltersFor(field string) []Filter {
	var out []Filter
	for _, f := range p.Filters {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

// Parse extracts the JSON:API query parameters. Every malformed parameter
// is reported; the returned error is a japi.ErrorList.
func Parse(query url.Values) (*Params, error) {
	params := &Params{
		Fields: make(map[string][]string),
		Extra:  make(url.Values),
	}

	var errs japi.ErrorList
	pageValues := make(map[string]string)

	for _, key := range sortedKeys(query) {
		values := query[key]
		value := ""
		if len(values) > 0 {
			value = values[0]
		}

		switch {
		case key == "include":
			params.Include = parseInclude(value)
		case key == "sort":
			params.Sort = parseSort(value)
		case fieldsPattern.MatchString(key):
			typeName := fieldsPattern.FindStringSubmatch(key)[1]
			params.Fields[typeName] = splitList(value)
		case filterPattern.MatchString(key):
			field := filterPattern.FindStringSubmatch(key)[1]
			for _, v := range values {
				filter, err := parseFilter(key, field, v)
				if err != nil {
					errs.Add(err)
					continue
				}
				params.Filters = append(params.Filters, filter)
			}
		case pagePattern.MatchString(key):
			pageValues[pagePattern.FindStringSubmatch(key)[1]] = value
		case strings.HasPrefix(key, "fields") || strings.HasPrefix(key, "filter"):
			errs.Add(japi.BadRequest(fmt.Sprintf("The parameter '%s' is malformed.", key)).WithParameter(key))
		default:
			params.Extra[key] = values
		}
	}

	if len(pageValues) > 0 {
		page, pageErrs := parsePage(pageValues)
		errs.Extend(pageErrs)
		params.Page = page
	}

	if !errs.Empty() {
		return nil, errs
	}
	return params, nil
}

func parseInclude(value string) [][]string {
	var paths [][]string
	for _, path := range splitList(value) {
		var segments []string
		for _, seg := range strings.Split(path, ".") {
			if seg = strings.TrimSpace(seg); seg != "" {
				segments = append(segments, seg)
			}
		}
		if len(segments) > 0 {
			paths = append(paths, segments)
		}
	}
	return paths
}

func parseSort(value string) []SortField {
	var fields []SortField
	for _, item := range splitList(value) {
		desc := false
		switch item[0] {
		case '-':
			desc = true
			item = item[1:]
		case '+':
			item = item[1:]
		}
		if item == "" {
			continue
		}
		fields = append(fields, SortField{Field: strings.Split(item, "."), Desc: desc})
	}
	return fields
}

func parseFilter(key, field, value string) (Filter, *japi.Error) {
	matches := filterRulePattern.FindStringSubmatch(value)
	if matches == nil || !Operators[matches[1]] {
		return Filter{Field: field, Op: "eq", Value: value}, nil
	}

	var rule any
	if err := json.Unmarshal([]byte(matches[2]), &rule); err != nil {
		return Filter{}, japi.BadRequest(
			fmt.Sprintf("The filter rule of '%s' must be valid JSON.", key),
		).WithParameter(key)
	}
	return Filter{Field: field, Op: matches[1], Value: rule}, nil
}

func parsePage(values map[string]string) (*Page, japi.ErrorList) {
	var errs japi.ErrorList
	page := &Page{}

	intParam := func(name string, min int) (int, bool) {
		raw, ok := values[name]
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < min {
			errs.Add(japi.BadRequest(
				fmt.Sprintf("The parameter 'page[%s]' must be an integer >= %d.", name, min),
			).WithParameter("page[" + name + "]"))
			return 0, false
		}
		return n, true
	}

	for name := range values {
		switch name {
		case "offset", "limit", "number", "size", "cursor":
		default:
			errs.Add(japi.BadRequest(
				fmt.Sprintf("The pagination parameter 'page[%s]' is not supported.", name),
			).WithParameter("page[" + name + "]"))
		}
	}

	_, hasNumber := values["number"]
	_, hasSize := values["size"]
	_, hasOffset := values["offset"]
	_, hasCursor := values["cursor"]

	switch {
	case (hasNumber || hasSize) && (hasOffset || hasCursor):
		errs.Add(japi.BadRequest("Pagination strategies can not be mixed.").WithParameter("page"))
	case hasOffset && hasCursor:
		errs.Add(japi.BadRequest("Pagination strategies can not be mixed.").WithParameter("page"))
	case hasNumber || hasSize:
		page.Strategy = NumberSize
		if hasNumber != hasSize {
			errs.Add(japi.BadRequest("Pagination requires 'page[size]' and 'page[number]'.").WithParameter("page"))
			break
		}
		number, ok1 := intParam("number", 0)
		size, ok2 := intParam("size", 1)
		if ok1 && ok2 {
			page.Number = number
			page.Size = size
			page.Limit = size
			page.Offset = size * number
		}
	case hasCursor:
		page.Strategy = Cursor
		page.Cursor = values["cursor"]
		if limit, ok := intParam("limit", 1); ok {
			page.Limit = limit
		}
	default:
		page.Strategy = LimitOffset
		if offset, ok := intParam("offset", 0); ok {
			page.Offset = offset
		}
		if limit, ok := intParam("limit", 1); ok {
			page.Limit = limit
		}
	}

	return page, errs
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func sortedKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
