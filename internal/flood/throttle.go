// Package flood rate-limits high-frequency observational pushes so the UI
// channel is not saturated by per-tick progress events.
package flood

import (
	"sync"
	"time"
)

// Throttle is a sliding one-second window limiter. Allow reports whether
// another push may go out now; denied pushes are simply dropped, the next
// allowed one carries the freshest state anyway.
type Throttle struct {
	limitPerSecond int
	mutex          sync.Mutex
	timestamps     []time.Time
	now            func() time.Time
}

// New creates a throttle allowing limitPerSecond pushes per sliding second.
// A non-positive limit disables throttling.
func New(limitPerSecond int) *Throttle {
	return &Throttle{
		limitPerSecond: limitPerSecond,
		now:            time.Now,
	}
}

// Allow records and permits a push if the window has room.
func (t *Throttle) Allow() bool {
	if t.limitPerSecond <= 0 {
		return true
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := t.now()
	windowStart := now.Add(-time.Second)

	valid := t.timestamps[:0]
	for _, ts := range t.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	t.timestamps = valid

	if len(t.timestamps) >= t.limitPerSecond {
		return false
	}
	t.timestamps = append(t.timestamps, now)
	return true
}
