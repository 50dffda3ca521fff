// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albmarin/umongo/core/indexes"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates primary keys for documents committed without
// one.
type IDGenerator interface {
	New() string
}

// Hasher provides password/secret hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Document Store Ports
// -----------------------------------------------------------------------------

// Filter selects documents by storage-world field values. A slice
// value matches documents whose field equals any of its elements.
type Filter map[string]any

// SortKey orders results by one storage field.
type SortKey struct {
	Field string
	Desc  bool
}

// FindOptions tunes a Find call. Zero Limit means no limit.
type FindOptions struct {
	Limit  int
	Offset int
	Sort   []SortKey
}

// Database groups named collections.
type Database interface {
	// Collection returns a handle on the named collection, creating
	// it lazily when the backend requires one.
	Collection(name string) Collection
}

// Collection is the slice of a document store the runtime needs.
// Documents are storage-world mappings whose primary key lives under
// the reserved "_id" key. Unique constraint violations surface as
// *DuplicateKeyError; lookups that match nothing return ErrNotFound.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// InsertOne stores a new document. The mapping must carry its
	// primary key under "_id".
	InsertOne(ctx context.Context, doc map[string]any) error

	// ReplaceOne replaces the document with the given primary key.
	ReplaceOne(ctx context.Context, id any, doc map[string]any) error

	// FindOne returns the first document matching the filter.
	FindOne(ctx context.Context, filter Filter) (map[string]any, error)

	// Find returns the documents matching the filter.
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]map[string]any, error)

	// CountDocuments returns the number of documents matching the
	// filter.
	CountDocuments(ctx context.Context, filter Filter) (int64, error)

	// DeleteOne removes the document with the given primary key.
	DeleteOne(ctx context.Context, id any) error

	// EnsureIndex creates the index described by spec if it does not
	// exist yet. Ensuring the same spec twice is a no-op.
	EnsureIndex(ctx context.Context, spec indexes.Spec) error

	// Drop removes the collection and its indexes.
	Drop(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// Store Errors
// -----------------------------------------------------------------------------

// ErrNotFound reports that no document matched.
var ErrNotFound = errors.New("document not found")

// DuplicateKeyError reports a unique index violation. Index names the
// violated index so callers can map the conflict back to a field.
type DuplicateKeyError struct {
	Index string
}

func (e *DuplicateKeyError) Error() string {
	if e.Index == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("duplicate key on index %s", e.Index)
}

// BackendError wraps a storage or driver failure that is not a
// document-level condition. It is never turned into a validation
// error.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Metrics Port
// -----------------------------------------------------------------------------

// Metrics records operational counters.
type Metrics interface {
	// DocumentCommitted counts a persisted document by collection and
	// operation (insert, replace, delete).
	DocumentCommitted(collection, op string)

	// ValidationFailed counts a rejected document by collection.
	ValidationFailed(collection string)

	// IndexEnsured counts an ensured index by collection.
	IndexEnsured(collection string)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) DocumentCommitted(string, string) {}
func (NopMetrics) ValidationFailed(string)          {}
func (NopMetrics) IndexEnsured(string)              {}
