package virtualize

import (
	"sync/atomic"
	"time"
)

// FrameInterval is the spacing of animation-frame boundaries for LoopClock.
const FrameInterval = 16 * time.Millisecond

// Clock is the engine's only source of time and deferral. Every callback a
// Clock runs must run on the same goroutine as the rest of the session.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn once after d. The returned func cancels it.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// RequestFrame runs fn at the next frame boundary.
	RequestFrame(fn func()) (cancel func())
}

// LoopClock is a wall clock whose callbacks are handed to post instead of
// being run on timer goroutines. post must enqueue fn onto the goroutine
// that owns the session (a bubbletea program, an event loop channel).
type LoopClock struct {
	post func(func())
}

// NewLoopClock returns a LoopClock delivering callbacks through post.
func NewLoopClock(post func(func())) *LoopClock {
	return &LoopClock{post: post}
}

func (c *LoopClock) Now() time.Time { return time.Now() }

func (c *LoopClock) AfterFunc(d time.Duration, fn func()) func() {
	var canceled atomic.Bool
	t := time.AfterFunc(d, func() {
		c.post(func() {
			if !canceled.Load() {
				fn()
			}
		})
	})
	return func() {
		canceled.Store(true)
		t.Stop()
	}
}

func (c *LoopClock) RequestFrame(fn func()) func() {
	return c.AfterFunc(FrameInterval, fn)
}

// Loop is a minimal single-goroutine event loop for hosts without one.
type Loop struct {
	queue chan func()
}

// NewLoop creates a loop with a buffered queue.
func NewLoop() *Loop {
	return &Loop{queue: make(chan func(), 256)}
}

// Post enqueues fn. It blocks when the queue is full.
func (l *Loop) Post(fn func()) { l.queue <- fn }

// Run executes posted funcs until done is closed.
func (l *Loop) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case fn := <-l.queue:
			fn()
		}
	}
}
