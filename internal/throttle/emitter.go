// Package throttle gates emissions to at most one per interval per channel key.
package throttle

import (
	"sync"
	"time"
)

// Well-known channel keys.
const (
	KeyVideo  = "video"
	KeyScreen = "screen"
)

type Emitter struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewEmitter() *Emitter {
	return &Emitter{last: make(map[string]time.Time)}
}

// ShouldEmit reports whether an emission on key is allowed at now. When it is,
// now is recorded as the key's last emission in the same critical section, so
// two racing callers cannot both pass.
func (e *Emitter) ShouldEmit(key string, minInterval time.Duration, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.last[key]; ok && now.Sub(last) < minInterval {
		return false
	}
	e.last[key] = now
	return true
}

// Last returns the last accepted emission time for key.
func (e *Emitter) Last(key string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.last[key]
	return t, ok
}

func (e *Emitter) Reset(key string) {
	e.mu.Lock()
	delete(e.last, key)
	e.mu.Unlock()
}

func (e *Emitter) ResetAll() {
	e.mu.Lock()
	e.last = make(map[string]time.Time)
	e.mu.Unlock()
}
