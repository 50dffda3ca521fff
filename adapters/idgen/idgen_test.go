package idgen_test

import (
	"encoding/hex"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albmarin/umongo/adapters/idgen"
)

var uuid4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUIDShapeAndUniqueness(t *testing.T) {
	g := idgen.UUID{}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key := g.New()
		require.Regexp(t, uuid4, key)
		require.False(t, seen[key], "duplicate primary key %s", key)
		seen[key] = true
	}
}

func TestObjectIDLayout(t *testing.T) {
	g := idgen.NewObjectID()

	before := uint32(time.Now().Unix())
	key := g.New()
	after := uint32(time.Now().Unix())

	raw, err := hex.DecodeString(key)
	require.NoError(t, err)
	require.Len(t, raw, 12)

	stamp := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	assert.GreaterOrEqual(t, stamp, before)
	assert.LessOrEqual(t, stamp, after)
}

func TestObjectIDCounterAdvances(t *testing.T) {
	g := idgen.NewObjectID()

	first := g.New()
	second := g.New()

	assert.NotEqual(t, first, second)
	// Same process bytes, consecutive counter: within one second the
	// keys sort in issue order.
	assert.Equal(t, first[8:18], second[8:18], "process bytes are fixed per generator")
	assert.Less(t, first[18:], second[18:])
}

func TestObjectIDConcurrentUniqueness(t *testing.T) {
	g := idgen.NewObjectID()

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				key := g.New()
				mu.Lock()
				if seen[key] {
					t.Errorf("duplicate primary key %s", key)
				}
				seen[key] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 2000)
}

func TestSequentialDeterminism(t *testing.T) {
	g := idgen.NewSequential("user-")

	assert.Equal(t, "user-1", g.New())
	assert.Equal(t, "user-2", g.New())

	g.Reset()
	assert.Equal(t, "user-1", g.New(), "reset rewinds to the first key")
}

func TestSequentialConcurrentUniqueness(t *testing.T) {
	g := idgen.NewSequential("doc-")

	keys := make(chan string, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				keys <- g.New()
			}
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]bool)
	for key := range keys {
		require.False(t, seen[key], "duplicate primary key %s", key)
		seen[key] = true
	}
	assert.Len(t, seen, 1000)
}
