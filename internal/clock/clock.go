// Package clock abstracts wall-clock time so queue timestamps and drain
// timings can be pinned in tests.
package clock

import (
	"sync"
	"time"
)

// Clock interface allows mocking time.Now() for deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock wraps time.Now()
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Mock is a manually advanced clock.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock returns a Mock clock set to t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now returns the current mock time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set pins the mock clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
