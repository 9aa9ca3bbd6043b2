package virtualize

// ScrollTarget is the scroll region the conversation is shown through.
// *dom.Document satisfies it.
type ScrollTarget interface {
	ScrollTop() float64
	ScrollHeight() float64
	ClientHeight() float64
	// ViewportTop is the top of the visible region in the coordinate space
	// of element rects.
	ViewportTop() float64
	ScrollToBottom()
	OnScroll(fn func(top float64)) (cancel func())
}

// IsAtBottom reports whether the distance between the bottom of the viewport
// and the bottom of the content is under threshold.
func IsAtBottom(t ScrollTarget, threshold float64) bool {
	dist := t.ScrollHeight() - t.ScrollTop() - t.ClientHeight()
	return dist < threshold
}

// Anchor tracks whether the user is anchored to the bottom of a scroll region.
type Anchor struct {
	target    ScrollTarget
	threshold float64
	atBottom  bool
}

// NewAnchor returns an Anchor over target, measured immediately.
func NewAnchor(target ScrollTarget, threshold float64) *Anchor {
	a := &Anchor{target: target, threshold: threshold}
	a.Update()
	return a
}

// Update re-measures and returns the new state.
func (a *Anchor) Update() bool {
	a.atBottom = IsAtBottom(a.target, a.threshold)
	return a.atBottom
}

// AtBottom returns the last measured state.
func (a *Anchor) AtBottom() bool { return a.atBottom }

// Reanchor scrolls to the bottom when the user was anchored before a pass
// and output is streaming. It never moves a user who scrolled away.
func (a *Anchor) Reanchor(wasAtBottom, streaming bool) bool {
	if !wasAtBottom || !streaming {
		return false
	}
	a.target.ScrollToBottom()
	a.Update()
	return true
}
