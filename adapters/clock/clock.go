// Package clock supplies the time source behind ports.Clock. The web
// layer stamps request logs with it; tests pin it to commit documents
// with known datetime values.
package clock

import (
	"sync"
	"time"

	"github.com/albmarin/umongo/ports"
)

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Frozen is a clock pinned to a fixed instant. It only moves when told
// to, so timestamps written through it are reproducible.
type Frozen struct {
	mu  sync.Mutex
	now time.Time
}

// Freeze pins a clock to the given instant.
func Freeze(at time.Time) *Frozen {
	return &Frozen{now: at}
}

func (f *Frozen) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the pinned instant forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Jump re-pins the clock to a new instant, past or future.
func (f *Frozen) Jump(to time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = to
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Frozen)(nil)
)
