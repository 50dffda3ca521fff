// Package idgen generates primary keys for documents committed
// without one. Keys are strings in the storage world; the document
// runtime never interprets their shape.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/albmarin/umongo/ports"
)

// UUID issues random version-4 UUID keys. The registry default.
type UUID struct{}

func (UUID) New() string {
	return uuid.NewString()
}

// ObjectID issues 24-character hex keys in the classic document-store
// layout: a 4-byte big-endian unix timestamp, 5 process-scoped random
// bytes, and a 3-byte counter. Keys from one process sort roughly by
// creation time, which keeps primary-key indexes append-mostly.
type ObjectID struct {
	process [5]byte
	counter atomic.Uint32
}

func NewObjectID() *ObjectID {
	g := &ObjectID{}
	if _, err := rand.Read(g.process[:]); err != nil {
		binary.BigEndian.PutUint32(g.process[:4], uint32(time.Now().UnixNano()))
	}
	return g
}

func (g *ObjectID) New() string {
	var key [12]byte
	binary.BigEndian.PutUint32(key[0:4], uint32(time.Now().Unix()))
	copy(key[4:9], g.process[:])

	n := g.counter.Add(1)
	key[9] = byte(n >> 16)
	key[10] = byte(n >> 8)
	key[11] = byte(n)
	return hex.EncodeToString(key[:])
}

// Sequential issues prefix-plus-counter keys. Deterministic output
// makes it the generator of choice for fixtures that assert on
// primary-key values.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Reset rewinds the counter so a fresh fixture starts from 1 again.
func (s *Sequential) Reset() {
	s.counter.Store(0)
}

var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = (*ObjectID)(nil)
	_ ports.IDGenerator = (*Sequential)(nil)
)
