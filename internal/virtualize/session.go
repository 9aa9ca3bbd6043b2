// Package virtualize keeps a long conversation view cheap to render by
// swapping off-screen message nodes for fixed-height placeholders and
// swapping them back as they approach the viewport.
//
// A Session is created on Boot and discarded on Teardown. It is
// single-threaded: every method and every Clock callback must run on the
// goroutine that owns the host document.
package virtualize

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/threadview/internal/dom"
)

// Host is the page a session virtualizes.
type Host interface {
	Document() *dom.Document
	// FindScrollContainer returns the scroll region of the message list, or
	// nil to fall back to the document.
	FindScrollContainer() ScrollTarget
	// FindConversationRoot returns the subtree holding the messages, or nil
	// to fall back to the document root.
	FindConversationRoot() *dom.Node
	// MatchesMessage reports whether n is a message-like element.
	MatchesMessage(n *dom.Node) bool
}

// Options configure a Session.
type Options struct {
	Config Config
	Clock  Clock
	// Detector overrides the selector heuristics built from Config.
	Detector StreamingDetector
	Logger   *slog.Logger
	// OnActivate runs once per session, after the first pass that finds a
	// message.
	OnActivate func(StatsSnapshot)
	// OnPass runs after every pass.
	OnPass func(PassResult)
	// NewID generates session identifiers. Defaults to UUIDv7.
	NewID func() string
}

// Session is the state of one virtualized conversation.
type Session struct {
	id       string
	cfg      Config
	host     Host
	doc      *dom.Document
	clock    Clock
	detector StreamingDetector
	logger   *slog.Logger

	onActivate func(StatsSnapshot)
	onPass     func(PassResult)

	registry *Registry
	anchor   *Anchor
	sched    *Scheduler
	mutation *Debouncer
	scroll   *FrameThrottle

	streaming    StreamingState
	streamTarget *dom.Node
	streamCancel func()
	pinned       PinnedSet

	stats      Stats
	passes     int
	lastReason string
	lastPass   time.Time

	enabled   bool
	activated bool
	closed    bool
	// mutating is set while the session itself edits the tree, so its own
	// edits do not feed back into the scheduler.
	mutating bool
	cancels  []func()
}

// Boot creates a session over host, subscribes to its trigger sources, and
// schedules the first pass.
func Boot(host Host, opts Options) (*Session, error) {
	if host == nil || host.Document() == nil {
		return nil, fmt.Errorf("virtualize: boot: host has no document")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("virtualize: boot: no clock")
	}
	cfg := opts.Config
	cfg.defaults()

	detector := opts.Detector
	if detector == nil {
		h, err := NewHeuristicDetector(cfg)
		if err != nil {
			return nil, fmt.Errorf("virtualize: boot: %w", err)
		}
		detector = h
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}

	s := &Session{
		id:         newID(),
		cfg:        cfg,
		host:       host,
		doc:        host.Document(),
		clock:      opts.Clock,
		detector:   detector,
		onActivate: opts.OnActivate,
		onPass:     opts.OnPass,
		registry:   NewRegistry(),
		pinned:     make(PinnedSet),
		enabled:    !cfg.Disabled,
	}
	s.logger = logger.With("session", s.id)
	s.anchor = NewAnchor(s.scrollTarget(), cfg.BottomThreshold)
	s.sched = NewScheduler(s.clock, cfg.StreamingThrottle, func() bool { return s.streaming.IsStreaming }, s.Virtualize)
	s.mutation = NewDebouncer(s.clock, cfg.MutationDebounce, func() { s.Schedule("mutation") })
	s.scroll = NewFrameThrottle(s.clock, cfg.ScrollThrottle, func() { s.Schedule("scroll") })

	root := host.FindConversationRoot()
	if root == nil {
		root = s.doc.Root()
	}
	s.cancels = append(s.cancels,
		s.doc.ObserveMutations(root, s.onMutation),
		s.scrollTarget().OnScroll(s.onScroll),
	)

	s.logger.Info("virtualize: session booted",
		"margin", cfg.Margin, "buffer", *cfg.BufferSize, "enabled", s.enabled)
	s.Schedule("boot")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

// Registry exposes the identity registry, for inspection.
func (s *Session) Registry() *Registry { return s.registry }

// Streaming returns the streaming state found by the last pass.
func (s *Session) Streaming() StreamingState { return s.streaming }

// Pinned returns the identifiers pinned by the last pass.
func (s *Session) Pinned() PinnedSet { return s.pinned }

// AtBottom reports whether the user was anchored to the bottom at the last
// measurement.
func (s *Session) AtBottom() bool { return s.anchor.AtBottom() }

// Schedule requests a pass.
func (s *Session) Schedule(reason string) {
	if s.closed {
		return
	}
	s.sched.Schedule(reason)
}

// HandleResize reacts to a viewport size change.
func (s *Session) HandleResize() {
	if s.closed {
		return
	}
	s.anchor.Update()
	s.Schedule("resize")
}

// Enabled reports whether passes run.
func (s *Session) Enabled() bool { return s.enabled }

// SetEnabled turns virtualization on or off. Turning it off restores every
// placeholder immediately.
func (s *Session) SetEnabled(enabled bool) {
	if s.closed || s.enabled == enabled {
		return
	}
	s.enabled = enabled
	if enabled {
		s.Schedule("enabled")
		return
	}
	s.restoreAll()
	s.recomputeStats()
	s.logger.Info("virtualize: disabled, placeholders restored")
}

// Teardown disconnects every observer, cancels pending work, restores
// placeholders, and releases identifiers. Callbacks that fire afterwards
// do nothing.
func (s *Session) Teardown() {
	if s.closed {
		return
	}
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.sched.Stop()
	s.mutation.Stop()
	s.scroll.Stop()
	s.setStreamTarget(nil)

	s.restoreAll()
	for _, e := range s.registry.Elements() {
		e.Node.RemoveAttr(AttrVirtualID)
	}
	s.registry.Reset()
	s.logger.Info("virtualize: session torn down", "passes", s.passes)
}

func (s *Session) scrollTarget() ScrollTarget {
	if t := s.host.FindScrollContainer(); t != nil {
		return t
	}
	return s.doc
}

func (s *Session) onMutation(dom.MutationRecord) {
	if s.closed || s.mutating {
		return
	}
	s.mutation.Trigger()
}

func (s *Session) onScroll(float64) {
	if s.closed || s.mutating {
		return
	}
	s.anchor.Update()
	s.scroll.Trigger()
}

func (s *Session) onStreamResize(dom.ResizeRecord) {
	if s.closed || s.mutating {
		return
	}
	s.Schedule("stream-resize")
}

func (s *Session) setStreamTarget(n *dom.Node) {
	if n == s.streamTarget {
		return
	}
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	s.streamTarget = n
	if n != nil {
		s.streamCancel = s.doc.ObserveResize(n, s.onStreamResize)
	}
}

func (s *Session) restoreAll() {
	s.mutating = true
	defer func() { s.mutating = false }()
	for _, e := range s.registry.Elements() {
		if e.Kind() == Placeholder {
			s.restore(e.ID)
		}
	}
}
