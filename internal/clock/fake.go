// Package clock provides a manually advanced clock for tests that exercise
// time-window behavior without sleeping.
package clock

import "time"

// FakeClock reports a fixed instant until advanced. Hand its Now method to
// any component that takes a now func.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward (or backward, with a negative duration).
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
