package testutil

import (
	"fmt"
	"sync"
	"time"
)

// T0 is the reference time used across tests.
var T0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// StubClock returns a settable time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// Now implements liveness.Clock.
func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

// StubIDGenerator returns sequential IDs: "id-1", "id-2", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

// NewStubIDGenerator creates a generator starting at id-1.
func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

// New implements liveness.IDGenerator.
func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++

	return fmt.Sprintf("id-%d", g.counter)
}
