// Package clock provides the shared-timeline clock and the scheduled-task
// abstraction the engine runs its timers on. Both are injectable so tests can
// drive virtual time deterministically.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock defines an interface for getting the current local time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock implements Clock for testing specific scenarios.
type MockClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewMock returns a MockClock frozen at t.
func NewMock(t time.Time) *MockClock {
	return &MockClock{t: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Set moves the mock clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}

// Advance moves the mock clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

// SharedClock projects the local clock onto the authoritative shared timeline
// by applying a signed millisecond offset. The offset is republished by the
// state backend whenever its skew estimate changes; consumers must read the
// clock at the moment they need "now" rather than caching an earlier value.
type SharedClock struct {
	base     Clock
	offsetMs atomic.Int64
}

// NewShared wraps base with a zero offset. A zero offset is also the degraded
// mode when the backend is unreachable: best effort, no correction.
func NewShared(base Clock) *SharedClock {
	return &SharedClock{base: base}
}

// Now returns the current instant on the shared timeline.
func (c *SharedClock) Now() time.Time {
	return c.base.Now().Add(time.Duration(c.offsetMs.Load()) * time.Millisecond)
}

// NowMillis returns the shared-timeline instant as Unix milliseconds.
func (c *SharedClock) NowMillis() int64 {
	return c.Now().UnixMilli()
}

// Offset returns the current signed offset in milliseconds.
func (c *SharedClock) Offset() int64 {
	return c.offsetMs.Load()
}

// SetOffset replaces the offset. Safe to call from the backend watcher while
// reconciliation reads the clock concurrently.
func (c *SharedClock) SetOffset(ms int64) {
	c.offsetMs.Store(ms)
}
