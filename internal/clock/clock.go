// Package clock supplies wall-clock time to the domain services so tests can pin "now".
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type system struct {
	loc *time.Location
}

// New returns a clock backed by time.Now in the given location (UTC when nil).
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return system{loc: loc}
}

func (c system) Now() time.Time {
	return time.Now().In(c.loc)
}

// Managed is a hand-driven clock for tests. It is safe for concurrent use.
type Managed struct {
	mu  sync.Mutex
	now time.Time
}

func NewManaged(start time.Time) *Managed {
	return &Managed{now: start}
}

func (c *Managed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new time.
func (c *Managed) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps to t.
func (c *Managed) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
