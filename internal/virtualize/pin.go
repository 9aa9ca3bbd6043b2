package virtualize

import "github.com/daviddao/threadview/internal/dom"

// PinnedSet holds the identifiers exempt from unmounting for one pass.
type PinnedSet map[string]struct{}

// Has reports whether id is pinned.
func (p PinnedSet) Has(id string) bool {
	_, ok := p[id]
	return ok
}

// ComputePinned pins the last bufferSize+1 tracked elements while streaming
// and nothing otherwise. It is recomputed from document order every pass.
func ComputePinned(streaming bool, tracked []*dom.Node, bufferSize int) PinnedSet {
	pinned := make(PinnedSet)
	if !streaming {
		return pinned
	}
	start := max(len(tracked)-(bufferSize+1), 0)
	for _, n := range tracked[start:] {
		if id := IDOf(n); id != "" {
			pinned[id] = struct{}{}
		}
	}
	return pinned
}
