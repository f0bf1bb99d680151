package queue

import "sync/atomic"

// Clock is a monotonic logical clock stamping every enqueued entry.
//
// Coalescing and last-write-wins storage order on seq, never on wall
// time: two updates enqueued in the same millisecond still have a
// definite winner.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
