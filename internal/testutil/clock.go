package testutil

import (
	"sync"
	"time"
)

// Epoch is the default time of a FixedClock: 2024-01-31 00:00:00 UTC.
var Epoch = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

// FixedClock is a settable clock for tests.
//
// Date expressions that depend on "now" (DIFF) compile against Now, so
// the same fixture data always produces the same results.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock stopped at t. A zero t means Epoch.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = Epoch
	}
	return &FixedClock{now: t.UTC()}
}

// Now returns the current clock time. Pass the method value wherever a
// func() time.Time is expected.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set stops the clock at t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
