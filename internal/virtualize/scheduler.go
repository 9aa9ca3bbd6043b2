package virtualize

import "time"

type schedState int

const (
	stateIdle schedState = iota
	statePending
)

// Scheduler coalesces pass requests. At most one pass is pending at a time;
// requests made while one is pending are absorbed and their reasons lost.
// While streaming, consecutive passes start at least the throttle apart.
type Scheduler struct {
	clock     Clock
	throttle  time.Duration
	streaming func() bool
	run       func(reason string)

	state    schedState
	reason   string
	lastRun  time.Time
	cancel   func()
	stopped  bool
}

// NewScheduler returns an idle scheduler that executes passes with run.
func NewScheduler(clock Clock, throttle time.Duration, streaming func() bool, run func(reason string)) *Scheduler {
	return &Scheduler{clock: clock, throttle: throttle, streaming: streaming, run: run}
}

// Schedule requests a pass at the next frame boundary.
func (s *Scheduler) Schedule(reason string) {
	if s.stopped || s.state == statePending {
		return
	}
	s.state = statePending
	s.reason = reason
	s.cancel = s.clock.RequestFrame(s.fire)
}

// Pending reports whether a pass is waiting to run.
func (s *Scheduler) Pending() bool { return s.state == statePending }

// Stop cancels any pending pass and ignores further requests.
func (s *Scheduler) Stop() {
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = stateIdle
}

func (s *Scheduler) fire() {
	s.cancel = nil
	if s.stopped || s.state != statePending {
		return
	}
	if s.streaming() && !s.lastRun.IsZero() {
		if elapsed := s.clock.Now().Sub(s.lastRun); elapsed < s.throttle {
			s.cancel = s.clock.AfterFunc(s.throttle-elapsed, s.fire)
			return
		}
	}
	reason := s.reason
	s.lastRun = s.clock.Now()
	s.run(reason)
	s.state = stateIdle
	s.reason = ""
}

// Debouncer runs fn once a burst of triggers has been quiet for wait.
type Debouncer struct {
	clock  Clock
	wait   time.Duration
	fn     func()
	cancel func()
}

// NewDebouncer returns a Debouncer.
func NewDebouncer(clock Clock, wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: clock, wait: wait, fn: fn}
}

// Trigger restarts the quiet period.
func (d *Debouncer) Trigger() {
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = d.clock.AfterFunc(d.wait, func() {
		d.cancel = nil
		d.fn()
	})
}

// Stop drops a pending run.
func (d *Debouncer) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// FrameThrottle runs fn at most once per spacing, always at a frame
// boundary. A trigger inside the spacing window is deferred to its end
// rather than dropped, so the final position of a scroll burst is seen.
type FrameThrottle struct {
	clock   Clock
	spacing time.Duration
	fn      func()

	last     time.Time
	frame    func()
	trailing func()
}

// NewFrameThrottle returns a FrameThrottle.
func NewFrameThrottle(clock Clock, spacing time.Duration, fn func()) *FrameThrottle {
	return &FrameThrottle{clock: clock, spacing: spacing, fn: fn}
}

// Trigger requests a run.
func (t *FrameThrottle) Trigger() {
	if t.frame != nil || t.trailing != nil {
		return
	}
	if !t.last.IsZero() {
		if wait := t.spacing - t.clock.Now().Sub(t.last); wait > 0 {
			t.trailing = t.clock.AfterFunc(wait, func() {
				t.trailing = nil
				t.requestFrame()
			})
			return
		}
	}
	t.requestFrame()
}

func (t *FrameThrottle) requestFrame() {
	t.frame = t.clock.RequestFrame(func() {
		t.frame = nil
		t.last = t.clock.Now()
		t.fn()
	})
}

// Stop drops pending runs.
func (t *FrameThrottle) Stop() {
	if t.frame != nil {
		t.frame()
		t.frame = nil
	}
	if t.trailing != nil {
		t.trailing()
		t.trailing = nil
	}
}
