package blog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
)

type scanner interface {
	Scan(dest ...any) error
}

// Mapping describes how resources of Go type T are stored in a table.
type Mapping[T any] struct {
	// Type is the JSON:API type name, used in error messages.
	Type  string
	Table string
	// Columns lists the non-id columns in the order Scan reads and Values
	// returns them.
	Columns []string
	// Fields maps JSON:API field names onto columns for filtering and
	// sorting. "id" is always mapped.
	Fields map[string]string

	ID    func(T) string
	SetID func(T, string)
	// Scan reads the id followed by Columns.
	Scan   func(row scanner) (T, error)
	Values func(T) []any

	BeforeSave   func(req *request.Request, res T, created bool) error
	BeforeDelete func(req *request.Request, res T) error
}

// Table is a schema.Handler backed by a SQL table.
type Table[T any] struct {
	db    *DB
	m     Mapping[T]
	newID func() string
}

// NewTable creates a handler for m.
func NewTable[T any](db *DB, m Mapping[T]) *Table[T] {
	return &Table[T]{
		db:    db,
		m:     m,
		newID: func() string { return uuid.New().String() },
	}
}

// WithIDGenerator replaces the uuid generator used for new resources.
func (t *Table[T]) WithIDGenerator(newID func() string) *Table[T] {
	t.newID = newID
	return t
}

func (t *Table[T]) selectColumns() string {
	return "SELECT id, " + strings.Join(t.m.Columns, ", ") + " FROM " + t.m.Table
}

func (t *Table[T]) column(field string) (string, bool) {
	if field == "id" {
		return "id", true
	}
	col, ok := t.m.Fields[field]
	return col, ok
}

// Collection applies the filters, sort and page of req in SQL.
func (t *Table[T]) Collection(req *request.Request) ([]any, int, error) {
	where, args, err := t.where(req.Params.Filters)
	if err != nil {
		return nil, 0, err
	}
	order, err := t.orderBy(req.Params.Sort)
	if err != nil {
		return nil, 0, err
	}

	ctx := req.Context()

	var total int
	countQuery := t.db.Rebind("SELECT COUNT(*) FROM " + t.m.Table + where)
	if err := t.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", t.m.Table, err)
	}

	query := t.selectColumns() + where + order
	skip := 0
	if page := req.Params.Page; page != nil {
		switch {
		case page.Limit > 0:
			query += " LIMIT ? OFFSET ?"
			args = append(args, page.Limit, page.Offset)
		case page.Offset > 0:
			skip = page.Offset
		}
	}

	rows, err := t.db.QueryContext(ctx, t.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query %s: %w", t.m.Table, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		res, err := t.m.Scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan %s: %w", t.m.Table, err)
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", t.m.Table, err)
	}
	return out, total, nil
}

func (t *Table[T]) where(filters []request.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, f := range filters {
		col, ok := t.column(f.Field)
		if !ok {
			return "", nil, japi.UnfilterableField(t.m.Type, f.Field, f.Op)
		}

		switch f.Op {
		case "eq", "":
			if f.Value == nil {
				clauses = append(clauses, col+" IS NULL")
				continue
			}
			clauses = append(clauses, col+" = ?")
			args = append(args, f.Value)
		case "ne":
			if f.Value == nil {
				clauses = append(clauses, col+" IS NOT NULL")
				continue
			}
			clauses = append(clauses, col+" <> ?")
			args = append(args, f.Value)
		case "lt", "lte", "gt", "gte":
			clauses = append(clauses, col+" "+comparison[f.Op]+" ?")
			args = append(args, f.Value)
		case "in", "nin":
			values, ok := f.Value.([]any)
			if !ok {
				return "", nil, japi.BadRequest(
					fmt.Sprintf("The filter '%s' expects a list.", f.Op),
				).WithParameter("filter[" + f.Field + "]")
			}
			if len(values) == 0 {
				if f.Op == "in" {
					clauses = append(clauses, "1 = 0")
				}
				continue
			}
			op := " IN ("
			if f.Op == "nin" {
				op = " NOT IN ("
			}
			clauses = append(clauses, col+op+placeholders(len(values))+")")
			args = append(args, values...)
		case "contains", "startswith", "endswith":
			s, ok := f.Value.(string)
			if !ok {
				return "", nil, japi.BadRequest(
					fmt.Sprintf("The filter '%s' expects a string.", f.Op),
				).WithParameter("filter[" + f.Field + "]")
			}
			clauses = append(clauses, col+" LIKE ?")
			args = append(args, likePattern(f.Op, s))
		default:
			return "", nil, japi.UnfilterableField(t.m.Type, f.Field, f.Op)
		}
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

var comparison = map[string]string{
	"lt":  "<",
	"lte": "<=",
	"gt":  ">",
	"gte": ">=",
}

func likePattern(op, s string) string {
	switch op {
	case "startswith":
		return s + "%"
	case "endswith":
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// orderBy always ends with id so pages are stable.
func (t *Table[T]) orderBy(fields []request.SortField) (string, error) {
	terms := make([]string, 0, len(fields)+1)
	byID := false
	for _, s := range fields {
		col, ok := t.column(s.Path())
		if !ok {
			return "", japi.UnsortableField(t.m.Type, s.Path())
		}
		if col == "id" {
			byID = true
		}
		if s.Desc {
			col += " DESC"
		}
		terms = append(terms, col)
	}
	if !byID {
		terms = append(terms, "id")
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// Fetch loads resources by id with a single query.
func (t *Table[T]) Fetch(req *request.Request, ids []string) (map[string]any, error) {
	found := make(map[string]any, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := t.db.Rebind(t.selectColumns() + " WHERE id IN (" + placeholders(len(ids)) + ")")

	rows, err := t.db.QueryContext(req.Context(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", t.m.Table, err)
	}
	defer rows.Close()

	for rows.Next() {
		res, err := t.m.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.m.Table, err)
		}
		found[t.m.ID(res)] = res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.m.Table, err)
	}
	return found, nil
}

// Find loads a single resource.
func (t *Table[T]) Find(req *request.Request, id string) (T, error) {
	query := t.db.Rebind(t.selectColumns() + " WHERE id = ?")
	res, err := t.m.Scan(t.db.QueryRowContext(req.Context(), query, id))
	if err != nil {
		var zero T
		if isNoRows(err) {
			return zero, japi.ResourceNotFound(t.m.Type, id)
		}
		return zero, fmt.Errorf("failed to find %s: %w", t.m.Table, err)
	}
	return res, nil
}

// IDs returns the ids of the rows whose column equals value, which is how
// to-many relationships owned by the other side are read.
func (t *Table[T]) IDs(req *request.Request, column string, value any) ([]string, error) {
	query := t.db.Rebind("SELECT id FROM " + t.m.Table + " WHERE " + column + " = ? ORDER BY id")
	rows, err := t.db.QueryContext(req.Context(), query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s ids: %w", t.m.Table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", t.m.Table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save inserts created resources and updates existing ones.
func (t *Table[T]) Save(req *request.Request, resource any, created bool) error {
	res, ok := resource.(T)
	if !ok {
		return fmt.Errorf("%s: unexpected resource %T", t.m.Table, resource)
	}
	if created && t.m.ID(res) == "" {
		t.m.SetID(res, t.newID())
	}
	if t.m.BeforeSave != nil {
		if err := t.m.BeforeSave(req, res, created); err != nil {
			return err
		}
	}

	values := t.m.Values(res)
	id := t.m.ID(res)
	ctx := req.Context()

	if created {
		query := "INSERT INTO " + t.m.Table + " (id, " + strings.Join(t.m.Columns, ", ") +
			") VALUES (" + placeholders(len(t.m.Columns)+1) + ")"
		args := append([]any{id}, values...)
		if _, err := t.db.ExecContext(ctx, t.db.Rebind(query), args...); err != nil {
			return convertDBError(fmt.Errorf("failed to insert into %s: %w", t.m.Table, err))
		}
		return nil
	}

	sets := make([]string, len(t.m.Columns))
	for i, col := range t.m.Columns {
		sets[i] = col + " = ?"
	}
	query := "UPDATE " + t.m.Table + " SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := t.db.ExecContext(ctx, t.db.Rebind(query), append(values, id)...)
	if err != nil {
		return convertDBError(fmt.Errorf("failed to update %s: %w", t.m.Table, err))
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return japi.ResourceNotFound(t.m.Type, id)
	}
	return nil
}

// Delete removes a row. BeforeDelete sees the stored resource.
func (t *Table[T]) Delete(req *request.Request, id string) error {
	if t.m.BeforeDelete != nil {
		res, err := t.Find(req, id)
		if err != nil {
			return err
		}
		if err := t.m.BeforeDelete(req, res); err != nil {
			return err
		}
	}

	query := t.db.Rebind("DELETE FROM " + t.m.Table + " WHERE id = ?")
	result, err := t.db.ExecContext(req.Context(), query, id)
	if err != nil {
		return convertDBError(fmt.Errorf("failed to delete from %s: %w", t.m.Table, err))
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return japi.ResourceNotFound(t.m.Type, id)
	}
	return nil
}
