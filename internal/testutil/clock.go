// Package testutil provides deterministic helpers shared across test
// packages: a stepping wall clock so timestamps, escalation deadlines, and
// golden traces are reproducible run to run.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the base instant the stepping clock starts from.
var Epoch = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

// WallClock is a deterministic wall clock. Each call to Now advances by a
// fixed step, so successive timestamps are distinct but reproducible.
//
// Thread-safe via internal mutex.
type WallClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewWallClock creates a clock starting at Epoch advancing one second per
// reading.
func NewWallClock() *WallClock {
	return &WallClock{now: Epoch, step: time.Second}
}

// NewWallClockAt creates a clock starting at a specific instant.
func NewWallClockAt(start time.Time, step time.Duration) *WallClock {
	return &WallClock{now: start.UTC(), step: step}
}

// Now returns the current instant and advances the clock by one step.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the instant the next Now call will report, without
// advancing.
func (c *WallClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance jumps the clock forward. Used to cross escalation deadlines in
// timeout tests.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
