package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a resettable sequence counter for tests.
//
// MemorySource stamps emitted events with it so traces carry stable Seq
// values. The first call to Next returns 1.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset sets the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// FakeTime is a manually advanced wall clock. Its Now method fits wherever a
// func() time.Time is accepted (session expiry, audit timestamps).
type FakeTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeTime creates a clock frozen at start.
func NewFakeTime(start time.Time) *FakeTime {
	return &FakeTime{now: start}
}

// Now returns the current fake time.
func (f *FakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
