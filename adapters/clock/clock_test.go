package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albmarin/umongo/adapters/clock"
	"github.com/albmarin/umongo/core/schema"
)

func TestRealTracksSystemTime(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before) || got.After(after),
		"Now() = %v, want between %v and %v", got, before, after)
}

func TestFrozenStaysPut(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := clock.Freeze(at)

	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now(), "a frozen clock never drifts")

	c.Advance(48 * time.Hour)
	assert.Equal(t, at.Add(48*time.Hour), c.Now())

	past := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Jump(past)
	assert.Equal(t, past, c.Now())
}

// Timestamps taken from a pinned clock round-trip datetime coercion
// exactly, which document fixtures with datetime fields rely on.
func TestFrozenFeedsDatetimeFields(t *testing.T) {
	c := clock.Freeze(time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC))

	got, err := schema.DateTime().Coerce(c.Now())
	require.NoError(t, err)

	c.Advance(time.Minute)
	later, err := schema.DateTime().Coerce(c.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, later.(time.Time).Sub(got.(time.Time)))
}

func TestFrozenConcurrentUse(t *testing.T) {
	c := clock.Freeze(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 200; j++ {
				c.Advance(time.Second)
				_ = c.Now()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(1600 * time.Second)
	assert.Equal(t, want, c.Now())
}
