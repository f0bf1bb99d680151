// Package testutil provides deterministic stand-ins for time-driven
// primitives so state machines are testable without wall-clock waits.
package testutil

import "time"

// ManualScheduler implements queue.Scheduler with an explicitly fired
// tick channel. Tests call Fire to release exactly one drain cycle.
type ManualScheduler struct {
	C chan time.Time
}

// NewManualScheduler creates a scheduler whose ticks are test-driven.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{C: make(chan time.Time)}
}

// Tick returns the manual tick channel.
func (s *ManualScheduler) Tick() <-chan time.Time { return s.C }

// Stop is a no-op; the channel stays open so late receives don't panic.
func (s *ManualScheduler) Stop() {}

// Fire releases one tick, blocking until the consumer receives it.
func (s *ManualScheduler) Fire() {
	s.C <- time.Now()
}
