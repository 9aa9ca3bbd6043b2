// Package fakeclock is a deterministic clock for driving timers and frame
// callbacks from tests.
package fakeclock

import (
	"cmp"
	"slices"
	"time"
)

type timer struct {
	at       time.Time
	seq      int
	fn       func()
	canceled bool
}

// Clock is a manual clock. Timers fire only inside Advance; frame callbacks
// fire only inside Frame.
type Clock struct {
	now    time.Time
	seq    int
	timers []*timer
	frames []*timer
	// Frames counts frame boundaries passed.
	Frames int
}

// New returns a clock set to a fixed instant.
func New() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time { return c.now }

func (c *Clock) AfterFunc(d time.Duration, fn func()) func() {
	c.seq++
	t := &timer{at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return func() { t.canceled = true }
}

func (c *Clock) RequestFrame(fn func()) func() {
	c.seq++
	t := &timer{seq: c.seq, fn: fn}
	c.frames = append(c.frames, t)
	return func() { t.canceled = true }
}

// Frame runs the frame callbacks requested before the call.
func (c *Clock) Frame() {
	c.Frames++
	due := c.frames
	c.frames = nil
	for _, t := range due {
		if !t.canceled {
			t.fn()
		}
	}
}

// Advance moves time forward by d, firing due timers in order.
func (c *Clock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		t := c.nextTimer(end)
		if t == nil {
			break
		}
		c.now = t.at
		t.fn()
	}
	c.now = end
}

func (c *Clock) nextTimer(end time.Time) *timer {
	c.timers = slices.DeleteFunc(c.timers, func(t *timer) bool { return t.canceled })
	if len(c.timers) == 0 {
		return nil
	}
	slices.SortFunc(c.timers, func(a, b *timer) int {
		if n := a.at.Compare(b.at); n != 0 {
			return n
		}
		return cmp.Compare(a.seq, b.seq)
	})
	t := c.timers[0]
	if t.at.After(end) {
		return nil
	}
	c.timers = c.timers[1:]
	return t
}

// PendingFrames returns the number of live frame callbacks.
func (c *Clock) PendingFrames() int {
	n := 0
	for _, t := range c.frames {
		if !t.canceled {
			n++
		}
	}
	return n
}

// PendingTimers returns the number of live timers.
func (c *Clock) PendingTimers() int {
	n := 0
	for _, t := range c.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Settle alternates frames and timer advances of step until nothing is
// pending, or max rounds pass.
func (c *Clock) Settle(step time.Duration, max int) {
	for range max {
		if c.PendingFrames() == 0 && c.PendingTimers() == 0 {
			return
		}
		c.Frame()
		c.Advance(step)
	}
}
