// Package clock provides the time source used by the liveness state machine.
// Phase timing compares readings taken from the same Clock, so the real
// implementation relies on the monotonic component of time.Time.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock. Values returned by Now carry a monotonic reading,
// so Sub between two of them is immune to system time adjustments.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// AdvanceSeconds moves the clock forward by s seconds.
func (m *Manual) AdvanceSeconds(s float64) {
	m.Advance(time.Duration(s * float64(time.Second)))
}
