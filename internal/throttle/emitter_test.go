package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldEmit_WithinInterval(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for _, interval := range []time.Duration{time.Millisecond, time.Second, 15 * time.Second} {
		e := NewEmitter()
		assert.True(t, e.ShouldEmit(KeyVideo, interval, t0))
		assert.False(t, e.ShouldEmit(KeyVideo, interval, t0.Add(interval-time.Nanosecond)))

		e = NewEmitter()
		assert.True(t, e.ShouldEmit(KeyVideo, interval, t0))
		assert.True(t, e.ShouldEmit(KeyVideo, interval, t0.Add(interval)))
	}
}

func TestShouldEmit_RejectLeavesStateUntouched(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	e := NewEmitter()

	assert.True(t, e.ShouldEmit(KeyVideo, 15*time.Second, t0))
	assert.False(t, e.ShouldEmit(KeyVideo, 15*time.Second, t0.Add(10*time.Second)))

	last, ok := e.Last(KeyVideo)
	assert.True(t, ok)
	assert.Equal(t, t0, last)

	// measured from t0, not from the rejected attempt
	assert.True(t, e.ShouldEmit(KeyVideo, 15*time.Second, t0.Add(15*time.Second)))
}

func TestShouldEmit_IndependentKeys(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	e := NewEmitter()

	assert.True(t, e.ShouldEmit(KeyVideo, 15*time.Second, t0))
	assert.False(t, e.ShouldEmit(KeyVideo, 15*time.Second, t0.Add(time.Second)))
	assert.True(t, e.ShouldEmit(KeyScreen, 30*time.Second, t0.Add(time.Second)))
	assert.True(t, e.ShouldEmit("custom", time.Hour, t0.Add(time.Second)))
}

func TestShouldEmit_Reset(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	e := NewEmitter()

	assert.True(t, e.ShouldEmit(KeyScreen, time.Minute, t0))
	e.Reset(KeyScreen)
	assert.True(t, e.ShouldEmit(KeyScreen, time.Minute, t0.Add(time.Second)))

	e.ResetAll()
	_, ok := e.Last(KeyScreen)
	assert.False(t, ok)
}

func TestShouldEmit_ConcurrentCallersOnlyOneWins(t *testing.T) {
	now := time.Now()
	e := NewEmitter()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.ShouldEmit(KeyVideo, time.Second, now) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
