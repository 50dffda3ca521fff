// Package sqlite provides a document store on SQLite. Each collection
// is one table holding the storage mapping as a JSON column; index
// specs become expression indexes over json_extract, so unique
// constraints are enforced by the database itself and surface as
// ports.DuplicateKeyError like any other backend.
package sqlite

import (
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/albmarin/umongo/ports"
)

// DB wraps a SQLite database connection and hands out collections.
type DB struct {
	sql   *sql.DB
	mu    sync.Mutex
	colls map[string]*Collection
}

// Open creates a SQLite database connection with WAL and a busy
// timeout, suitable for concurrent readers with a single writer.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DB{sql: db, colls: make(map[string]*Collection)}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error { return db.sql.Close() }

// Collection returns a handle on the named collection. The backing
// table is created lazily on first use.
func (db *DB) Collection(name string) ports.Collection {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.colls[name]; ok {
		return c
	}
	c := &Collection{db: db.sql, name: name, table: "doc_" + sanitize(name)}
	db.colls[name] = c
	return c
}

// Ensure interface compliance.
var _ ports.Database = (*DB)(nil)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitize strips everything but identifier characters from a
// collection name before it becomes part of a table name.
func sanitize(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}
