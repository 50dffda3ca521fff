// Package memory provides an in-process document store. It backs tests
// and the zero-setup demo mode, and enforces the same unique-index
// semantics a real backend would, so validation paths behave
// identically across drivers.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/albmarin/umongo/core/indexes"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// Database groups named in-memory collections.
type Database struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

// NewDatabase creates an empty in-memory database.
func NewDatabase() *Database {
	return &Database{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (d *Database) Collection(name string) ports.Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.collections[name]; ok {
		return c
	}
	c := &Collection{
		name:    name,
		indexes: make(map[string]indexes.Spec),
	}
	d.collections[name] = c
	return c
}

// Ensure interface compliance.
var _ ports.Database = (*Database)(nil)

// Collection is an in-memory implementation of ports.Collection.
// Documents are stored in insertion order; reads hand out deep copies
// so callers can never mutate the store through a result.
type Collection struct {
	name string

	mu      sync.RWMutex
	docs    []map[string]any
	indexes map[string]indexes.Spec
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// InsertOne stores a new document after checking the primary key and
// every ensured unique index.
func (c *Collection) InsertOne(_ context.Context, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := doc[schema.PKAttribute]
	if !ok || id == nil {
		return &ports.BackendError{Op: "insert", Err: fmt.Errorf("document has no %s", schema.PKAttribute)}
	}
	if c.indexOfID(id) >= 0 {
		return &ports.DuplicateKeyError{Index: schema.PKAttribute + "_1"}
	}
	if err := c.checkUnique(doc, -1); err != nil {
		return err
	}

	c.docs = append(c.docs, cloneDoc(doc))
	return nil
}

// ReplaceOne replaces the document with the given primary key.
func (c *Collection) ReplaceOne(_ context.Context, id any, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOfID(id)
	if i < 0 {
		return ports.ErrNotFound
	}
	if err := c.checkUnique(doc, i); err != nil {
		return err
	}

	c.docs[i] = cloneDoc(doc)
	return nil
}

// FindOne returns the first document matching the filter.
func (c *Collection) FindOne(_ context.Context, filter ports.Filter) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			return cloneDoc(doc), nil
		}
	}
	return nil, ports.ErrNotFound
}

// Find returns the documents matching the filter.
func (c *Collection) Find(_ context.Context, filter ports.Filter, opts ports.FindOptions) ([]map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []map[string]any
	for _, doc := range c.docs {
		if matches(doc, filter) {
			out = append(out, cloneDoc(doc))
		}
	}

	for i := len(opts.Sort) - 1; i >= 0; i-- {
		key := opts.Sort[i]
		sort.SliceStable(out, func(a, b int) bool {
			cmp := compareValues(out[a][key.Field], out[b][key.Field])
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// CountDocuments returns the number of documents matching the filter.
func (c *Collection) CountDocuments(_ context.Context, filter ports.Filter) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, doc := range c.docs {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

// DeleteOne removes the document with the given primary key.
func (c *Collection) DeleteOne(_ context.Context, id any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOfID(id)
	if i < 0 {
		return ports.ErrNotFound
	}
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return nil
}

// EnsureIndex records the index spec and, for unique indexes, verifies
// the documents already stored do not violate it. Ensuring the same
// spec twice is a no-op.
func (c *Collection) EnsureIndex(_ context.Context, spec indexes.Spec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if spec.Unique {
		for i, doc := range c.docs {
			if dup := c.findDuplicate(spec, doc, i); dup {
				return &ports.DuplicateKeyError{Index: spec.Name}
			}
		}
	}
	c.indexes[spec.Name] = spec
	return nil
}

// Drop removes the collection's documents and indexes.
func (c *Collection) Drop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = nil
	c.indexes = make(map[string]indexes.Spec)
	return nil
}

// Indexes returns the ensured index specs sorted by name.
func (c *Collection) Indexes() []indexes.Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]indexes.Spec, 0, len(c.indexes))
	for _, spec := range c.indexes {
		out = append(out, spec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Ensure interface compliance.
var _ ports.Collection = (*Collection)(nil)

// indexOfID returns the position of the document with the given
// primary key, or -1. Callers hold the lock.
func (c *Collection) indexOfID(id any) int {
	for i, doc := range c.docs {
		if equalValues(doc[schema.PKAttribute], id) {
			return i
		}
	}
	return -1
}

// checkUnique verifies doc against every ensured unique index,
// ignoring the document at position self during replaces.
func (c *Collection) checkUnique(doc map[string]any, self int) error {
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := c.indexes[name]
		if !spec.Unique {
			continue
		}
		if spec.Sparse && !hasAllKeys(doc, spec) {
			continue
		}
		if c.findDuplicate(spec, doc, self) {
			return &ports.DuplicateKeyError{Index: spec.Name}
		}
	}
	return nil
}

// findDuplicate reports whether another stored document carries the
// same key tuple as doc under spec.
func (c *Collection) findDuplicate(spec indexes.Spec, doc map[string]any, self int) bool {
	for i, other := range c.docs {
		if i == self {
			continue
		}
		if spec.Sparse && !hasAllKeys(other, spec) {
			continue
		}
		same := true
		for _, key := range spec.Keys {
			if !equalValues(doc[key.Field], other[key.Field]) {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

func hasAllKeys(doc map[string]any, spec indexes.Spec) bool {
	for _, key := range spec.Keys {
		if v, ok := doc[key.Field]; !ok || v == nil {
			return false
		}
	}
	return true
}

// matches applies a filter: every entry must match, slice values match
// any of their elements.
func matches(doc map[string]any, filter ports.Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if candidates, isList := anySlice(want); isList {
			found := false
			for _, cand := range candidates {
				if equalValues(got, cand) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !equalValues(got, want) {
			return false
		}
	}
	return true
}

func anySlice(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// equalValues compares storage values loosely: numeric types compare by
// value, times by instant.
func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		return bok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders storage values for sorting. Values of different
// shapes order by their formatted form, which keeps the sort total.
func compareValues(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneDoc(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
