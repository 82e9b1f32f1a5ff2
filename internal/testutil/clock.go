// Package testutil holds shared test helpers.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the base timestamp deterministic test clocks start from.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// SteppingClock is a deterministic time source for tests: every call
// to Now returns the epoch advanced by one more second. Manifest
// history timestamps become stable across runs, so tests can assert
// on them.
//
// Thread-safe via internal mutex.
type SteppingClock struct {
	mu    sync.Mutex
	ticks int
}

// NewSteppingClock creates a clock whose first Now() returns Epoch
// plus one second.
func NewSteppingClock() *SteppingClock {
	return &SteppingClock{}
}

// Now returns the next timestamp, one second after the previous one.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return Epoch.Add(time.Duration(c.ticks) * time.Second)
}

// Current returns the last timestamp handed out without advancing.
func (c *SteppingClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(time.Duration(c.ticks) * time.Second)
}
