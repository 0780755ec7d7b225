// Package lamport implements a process-wide Lamport logical clock.
package lamport

import "go.uber.org/atomic"

// Clock is a Lamport clock. The zero value is not usable; use New.
type Clock struct {
	value *atomic.Int64
}

// New returns a clock starting at zero.
func New() *Clock {
	return &Clock{value: atomic.NewInt64(0)}
}

// Increment advances the clock by one local event and returns the new value.
func (c *Clock) Increment() int64 {
	return c.value.Inc()
}

// Update merges a timestamp received from a peer: the clock becomes
// max(local, received+1). It returns the resulting value.
func (c *Clock) Update(received int64) int64 {
	next := received + 1
	for {
		cur := c.value.Load()
		if cur >= next {
			return cur
		}
		if c.value.CAS(cur, next) {
			return next
		}
	}
}

// Value returns the current clock value.
func (c *Clock) Value() int64 {
	return c.value.Load()
}
