package virtualize

import (
	"math"
	"time"

	"github.com/daviddao/threadview/internal/dom"
)

// Stats are derived from the tree after every pass.
type Stats struct {
	TotalTracked int
	MountedCount int
}

// StatsSnapshot is the externally visible state of a session.
type StatsSnapshot struct {
	SessionID    string `json:"session_id"`
	TotalTracked int    `json:"total_tracked"`
	MountedCount int    `json:"mounted_count"`
	PercentSaved int    `json:"percent_saved"`
	IsStreaming  bool   `json:"is_streaming"`
	PinnedCount  int    `json:"pinned_count"`
	Passes       int    `json:"passes"`
	LastReason   string `json:"last_reason,omitempty"`
	Enabled      bool   `json:"enabled"`
	AtBottom     bool   `json:"at_bottom"`
}

// PassResult summarizes one pass.
type PassResult struct {
	Reason    string
	Duration  time.Duration
	Unmounted int
	Restored  int
	Signal    string
	Stats     StatsSnapshot
}

// StatsSnapshot returns the current stats.
func (s *Session) StatsSnapshot() StatsSnapshot {
	saved := 0
	if s.stats.TotalTracked > 0 {
		placeholders := s.stats.TotalTracked - s.stats.MountedCount
		saved = int(math.Round(100 * float64(placeholders) / float64(s.stats.TotalTracked)))
	}
	return StatsSnapshot{
		SessionID:    s.id,
		TotalTracked: s.stats.TotalTracked,
		MountedCount: s.stats.MountedCount,
		PercentSaved: saved,
		IsStreaming:  s.streaming.IsStreaming,
		PinnedCount:  len(s.pinned),
		Passes:       s.passes,
		LastReason:   s.lastReason,
		Enabled:      s.enabled,
		AtBottom:     s.anchor.AtBottom(),
	}
}

// Virtualize runs one pass: detect streaming, pin, then mount or unmount
// every tracked element against the viewport window.
func (s *Session) Virtualize(reason string) {
	if s.closed || !s.enabled {
		return
	}
	start := s.clock.Now()
	s.mutating = true
	defer func() { s.mutating = false }()

	nodes := s.collect()
	s.registry.Ensure(nodes)

	det := s.detector.Detect(s.doc, s.resolve(nodes))
	s.setStreaming(det)
	s.pinned = ComputePinned(det.Streaming, nodes, *s.cfg.BufferSize)

	wasAtBottom := s.anchor.Update()

	target := s.scrollTarget()
	top := target.ViewportTop()
	lo := top - s.cfg.Margin
	hi := top + target.ClientHeight() + s.cfg.Margin

	var unmounted, restored int
	for _, n := range nodes {
		id := IDOf(n)
		if id == "" {
			continue
		}
		placeholder := IsPlaceholder(n)
		if s.pinned.Has(id) {
			if placeholder && s.restore(id) {
				restored++
			}
			continue
		}
		r, ok := s.doc.Rect(n)
		if !ok {
			continue
		}
		outside := r.Bottom < lo || r.Top > hi
		switch {
		case !placeholder && outside:
			if s.unmount(id) {
				unmounted++
			}
		case placeholder && !outside:
			if s.restore(id) {
				restored++
			}
		}
	}

	s.recomputeStats()
	s.anchor.Reanchor(wasAtBottom, det.Streaming)

	s.passes++
	s.lastReason = reason
	s.lastPass = s.clock.Now()
	snap := s.StatsSnapshot()

	if s.cfg.Debug {
		s.logger.Debug("virtualize: pass",
			"reason", reason,
			"tracked", snap.TotalTracked,
			"mounted", snap.MountedCount,
			"unmounted", unmounted,
			"restored", restored,
			"streaming", det.Streaming,
			"signal", det.Signal,
			"pinned", snap.PinnedCount)
	}
	if !s.activated && snap.TotalTracked > 0 {
		s.activated = true
		s.logger.Info("virtualize: active", "tracked", snap.TotalTracked)
		if s.onActivate != nil {
			s.onActivate(snap)
		}
	}
	if s.onPass != nil {
		s.onPass(PassResult{
			Reason:    reason,
			Duration:  s.lastPass.Sub(start),
			Unmounted: unmounted,
			Restored:  restored,
			Signal:    det.Signal,
			Stats:     snap,
		})
	}
}

// collect returns the message nodes and placeholders under the conversation
// root in document order. Message nodes are not searched for nested ones.
func (s *Session) collect() []*dom.Node {
	root := s.host.FindConversationRoot()
	if root == nil {
		root = s.doc.Root()
	}
	var nodes []*dom.Node
	dom.Walk(root, func(n *dom.Node) bool {
		if n == root {
			return true
		}
		if IsPlaceholder(n) || s.host.MatchesMessage(n) {
			nodes = append(nodes, n)
			return false
		}
		return true
	})
	return nodes
}

// resolve maps placeholders to their retained nodes, so detectors see the
// real message content.
func (s *Session) resolve(nodes []*dom.Node) []*dom.Node {
	out := make([]*dom.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if !IsPlaceholder(n) {
			continue
		}
		if e, ok := s.registry.Lookup(IDOf(n)); ok {
			out[i] = e.Node
		}
	}
	return out
}

func (s *Session) setStreaming(det Detection) {
	target := det.Target
	if !det.Streaming {
		target = nil
	}
	s.streaming = StreamingState{IsStreaming: det.Streaming, ElementID: IDOf(target)}
	s.setStreamTarget(target)
}

func (s *Session) recomputeStats() {
	var st Stats
	for _, n := range s.collect() {
		st.TotalTracked++
		if !IsPlaceholder(n) {
			st.MountedCount++
		}
	}
	s.stats = st
}

// unmount swaps the element's real node for a placeholder of the same
// height. Pinned, missing, and detached elements are left alone.
func (s *Session) unmount(id string) bool {
	if s.pinned.Has(id) {
		return false
	}
	e, ok := s.registry.Lookup(id)
	if !ok || !e.Attached || !e.Node.Connected() {
		return false
	}
	// A collapsed element still gets a visible stand-in; any measured
	// height is kept exactly so the content height does not change.
	h := s.doc.BoxHeight(e.Node)
	if h <= 0 {
		h = s.cfg.MinPlaceholderHeight
	}

	ph := s.doc.CreateElement("div")
	ph.AddClass(PlaceholderClass)
	ph.SetAttr(AttrVirtualID, id)
	ph.SetAttr("aria-hidden", "true")
	ph.SetHidden(true)
	ph.SetHeight(h)
	if !e.Node.ReplaceWith(ph) {
		return false
	}
	e.Placeholder = ph
	e.Attached = false
	e.Height = h
	return true
}

// restore puts the retained real node back in place of its placeholder.
func (s *Session) restore(id string) bool {
	e, ok := s.registry.Lookup(id)
	if !ok || e.Node == nil || e.Node.Connected() {
		return false
	}
	ph := e.Placeholder
	if ph == nil || !ph.Connected() {
		return false
	}
	if !ph.ReplaceWith(e.Node) {
		return false
	}
	e.Placeholder = nil
	e.Attached = true
	return true
}
