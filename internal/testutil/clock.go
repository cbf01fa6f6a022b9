package testutil

import "sync"

// DefaultEpoch is the ledger time tests start at (2023-11-14T22:13:20Z).
const DefaultEpoch int64 = 1700000000

// ManualClock is a ledger clock that only moves when told to.
//
// Every Now call returns the same value until Advance or Set is called, so
// a scenario produces identical timestamps on every run.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock at start; zero means DefaultEpoch.
func NewManualClock(start int64) *ManualClock {
	if start == 0 {
		start = DefaultEpoch
	}
	return &ManualClock{now: start}
}

// Now returns the current time in unix seconds.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by seconds and returns the new time.
func (c *ManualClock) Advance(seconds int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
