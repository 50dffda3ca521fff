package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/albmarin/umongo/core/indexes"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// Collection stores one collection's documents in a two-column table:
// the primary key rendered as text, and the full storage mapping as
// JSON. Filters, sorts, and unique indexes all go through
// json_extract on the document column.
type Collection struct {
	db    *sql.DB
	name  string
	table string

	once    sync.Once
	initErr error
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) init(ctx context.Context) error {
	c.once.Do(func() {
		_, c.initErr = c.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (pk TEXT PRIMARY KEY, doc TEXT NOT NULL)`, c.table))
	})
	if c.initErr != nil {
		return &ports.BackendError{Op: "create table " + c.table, Err: c.initErr}
	}
	return nil
}

// InsertOne stores a new document.
func (c *Collection) InsertOne(ctx context.Context, doc map[string]any) error {
	if err := c.init(ctx); err != nil {
		return err
	}
	id, ok := doc[schema.PKAttribute]
	if !ok || id == nil {
		return &ports.BackendError{Op: "insert", Err: fmt.Errorf("document has no %s", schema.PKAttribute)}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return &ports.BackendError{Op: "insert", Err: err}
	}

	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (pk, doc) VALUES (?, ?)`, c.table),
		keyString(id), string(body))
	if err != nil {
		return c.mapError("insert", err)
	}
	return nil
}

// ReplaceOne replaces the document with the given primary key.
func (c *Collection) ReplaceOne(ctx context.Context, id any, doc map[string]any) error {
	if err := c.init(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return &ports.BackendError{Op: "replace", Err: err}
	}

	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET doc = ? WHERE pk = ?`, c.table),
		string(body), keyString(id))
	if err != nil {
		return c.mapError("replace", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &ports.BackendError{Op: "replace", Err: err}
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// FindOne returns the first document matching the filter.
func (c *Collection) FindOne(ctx context.Context, filter ports.Filter) (map[string]any, error) {
	docs, err := c.Find(ctx, filter, ports.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ports.ErrNotFound
	}
	return docs[0], nil
}

// Find returns the documents matching the filter.
func (c *Collection) Find(ctx context.Context, filter ports.Filter, opts ports.FindOptions) ([]map[string]any, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT doc FROM %q`, c.table)
	where, args := buildWhere(filter)
	query += where

	if len(opts.Sort) > 0 {
		clauses := make([]string, 0, len(opts.Sort))
		for _, key := range opts.Sort {
			dir := "ASC"
			if key.Desc {
				dir = "DESC"
			}
			clauses = append(clauses, extractExpr(key.Field)+" "+dir)
		}
		query += " ORDER BY " + strings.Join(clauses, ", ")
	} else {
		// Insertion order keeps paging deterministic without a sort.
		query += " ORDER BY rowid"
	}

	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit == 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.mapError("find", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, &ports.BackendError{Op: "find", Err: err}
		}
		doc, err := decodeDoc(body)
		if err != nil {
			return nil, &ports.BackendError{Op: "find", Err: err}
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &ports.BackendError{Op: "find", Err: err}
	}
	return out, nil
}

// CountDocuments returns the number of documents matching the filter.
func (c *Collection) CountDocuments(ctx context.Context, filter ports.Filter) (int64, error) {
	if err := c.init(ctx); err != nil {
		return 0, err
	}
	where, args := buildWhere(filter)
	var n int64
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %q`, c.table)+where, args...).Scan(&n)
	if err != nil {
		return 0, c.mapError("count", err)
	}
	return n, nil
}

// DeleteOne removes the document with the given primary key.
func (c *Collection) DeleteOne(ctx context.Context, id any) error {
	if err := c.init(ctx); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE pk = ?`, c.table), keyString(id))
	if err != nil {
		return c.mapError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &ports.BackendError{Op: "delete", Err: err}
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// EnsureIndex creates the expression index described by spec. Text and
// hashed key modes have no SQLite equivalent and index ascending.
// A unique spec over data that already violates it fails with a
// DuplicateKeyError.
func (c *Collection) EnsureIndex(ctx context.Context, spec indexes.Spec) error {
	if err := c.init(ctx); err != nil {
		return err
	}

	parts := make([]string, 0, len(spec.Keys))
	for _, key := range spec.Keys {
		dir := "ASC"
		if key.Kind == indexes.Desc {
			dir = "DESC"
		}
		parts = append(parts, extractExpr(key.Field)+" "+dir)
	}

	unique := ""
	if spec.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %q ON %q (%s)`,
		unique, c.indexName(spec.Name), c.table, strings.Join(parts, ", "))

	if spec.Sparse {
		conds := make([]string, 0, len(spec.Keys))
		for _, key := range spec.Keys {
			conds = append(conds, extractExpr(key.Field)+" IS NOT NULL")
		}
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}

	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return c.mapError("ensure index "+spec.Name, err)
	}
	return nil
}

// Drop removes the collection's table and with it every index.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.init(ctx); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, c.table)); err != nil {
		return &ports.BackendError{Op: "drop " + c.table, Err: err}
	}
	c.once = sync.Once{}
	return nil
}

// Ensure interface compliance.
var _ ports.Collection = (*Collection)(nil)

func (c *Collection) indexName(spec string) string {
	return "idx_" + c.table + "_" + sanitize(spec)
}

// mapError translates driver failures: unique constraint violations
// become DuplicateKeyError carrying the planner's spec name, everything
// else is wrapped as a BackendError.
func (c *Collection) mapError(op string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) &&
		(serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return &ports.DuplicateKeyError{Index: c.violatedIndex(serr.Error())}
	}
	return &ports.BackendError{Op: op, Err: err}
}

// violatedIndex recovers the spec name from a constraint message.
// Expression indexes report as "UNIQUE constraint failed: index
// 'idx_doc_user_email_1'"; the pk column reports as "doc_user.pk".
func (c *Collection) violatedIndex(msg string) string {
	prefix := "index '" + "idx_" + c.table + "_"
	if i := strings.Index(msg, prefix); i >= 0 {
		rest := msg[i+len(prefix):]
		if j := strings.IndexByte(rest, '\''); j >= 0 {
			return rest[:j]
		}
	}
	if strings.Contains(msg, c.table+".pk") {
		return schema.PKAttribute + "_1"
	}
	return ""
}

// buildWhere renders a filter as a WHERE clause over json_extract.
// Slice values become IN lists; nil matches stored JSON nulls and
// absent fields alike, which json_extract cannot tell apart.
func buildWhere(filter ports.Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conds []string
	var args []any
	for _, field := range fields {
		expr := extractExpr(field)
		switch v := filter[field].(type) {
		case nil:
			conds = append(conds, expr+" IS NULL")
		case []any:
			marks := make([]string, len(v))
			for i, item := range v {
				marks[i] = "?"
				args = append(args, bindValue(item))
			}
			conds = append(conds, expr+" IN ("+strings.Join(marks, ", ")+")")
		case []string:
			marks := make([]string, len(v))
			for i, item := range v {
				marks[i] = "?"
				args = append(args, item)
			}
			conds = append(conds, expr+" IN ("+strings.Join(marks, ", ")+")")
		default:
			conds = append(conds, expr+" = ?")
			args = append(args, bindValue(v))
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// extractExpr builds the json_extract expression for a storage field.
func extractExpr(field string) string {
	return `json_extract(doc, '$.` + strings.ReplaceAll(field, "'", "''") + `')`
}

// bindValue converts a filter value to the shape json_extract yields
// for it: times compare as their JSON string form, booleans as 0/1.
func bindValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		b, _ := val.MarshalJSON()
		return strings.Trim(string(b), `"`)
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return v
	}
}

// decodeDoc unmarshals a stored document, keeping integral numbers as
// int64 so primary keys and counters survive the JSON round trip.
func decodeDoc(body string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return narrowNumbers(raw).(map[string]any), nil
}

func narrowNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = narrowNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = narrowNumbers(item)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

// keyString renders a primary key for the pk column.
func keyString(id any) string {
	return fmt.Sprint(id)
}
