package virtualize

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/daviddao/threadview/internal/dom"
)

const (
	// AttrVirtualID carries an element's virtual identifier on both its real
	// node and its placeholder.
	AttrVirtualID = "data-virtual-id"
	// PlaceholderClass marks placeholder nodes.
	PlaceholderClass = "tv-placeholder"
)

// Kind is the current representation of a tracked element.
type Kind int

const (
	Mounted Kind = iota
	Placeholder
)

func (k Kind) String() string {
	switch k {
	case Mounted:
		return "mounted"
	case Placeholder:
		return "placeholder"
	}
	return "unknown"
}

// Element is one logical message in the arena. Its identity survives any
// number of mounted/placeholder conversions.
type Element struct {
	ID  string
	Seq uint64

	// Node is the real node, retained while a placeholder stands in for it.
	Node *dom.Node
	// Placeholder is the stand-in while the element is not attached.
	Placeholder *dom.Node
	// Attached reports whether Node is the representation in the live tree.
	Attached bool
	// Height is the height recorded at the last unmount.
	Height float64
}

// Kind returns the element's current representation.
func (e *Element) Kind() Kind {
	if !e.Attached && e.Placeholder != nil {
		return Placeholder
	}
	return Mounted
}

// Registry assigns identifiers to message nodes and owns the real nodes of
// unmounted elements.
type Registry struct {
	seq   uint64
	elems map[string]*Element
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{elems: make(map[string]*Element)}
}

// IDOf returns the virtual identifier carried by n, or "".
func IDOf(n *dom.Node) string {
	if n == nil {
		return ""
	}
	id, _ := n.Attr(AttrVirtualID)
	return id
}

// IsPlaceholder reports whether n is a placeholder node.
func IsPlaceholder(n *dom.Node) bool {
	return n != nil && n.HasClass(PlaceholderClass)
}

// Ensure assigns identifiers to unidentified nodes and repairs registry
// entries for identified ones. It is idempotent for a given node set.
func (r *Registry) Ensure(nodes []*dom.Node) {
	for _, n := range nodes {
		if IsPlaceholder(n) {
			r.adoptPlaceholder(n)
			continue
		}
		id := IDOf(n)
		if id == "" {
			r.seq++
			id = "v" + strconv.FormatUint(r.seq, 10)
			n.SetAttr(AttrVirtualID, id)
			r.elems[id] = &Element{ID: id, Seq: r.seq, Node: n, Attached: true}
			continue
		}
		e, ok := r.elems[id]
		if !ok {
			// Identified by an earlier session or copied by the host.
			r.seq++
			r.elems[id] = &Element{ID: id, Seq: r.seq, Node: n, Attached: true}
			continue
		}
		// The host may have swapped in a fresh node for the same message.
		e.Node = n
		e.Attached = true
		if e.Placeholder != nil {
			if e.Placeholder.Connected() {
				e.Placeholder.Remove()
			}
			e.Placeholder = nil
		}
	}
}

func (r *Registry) adoptPlaceholder(n *dom.Node) {
	e, ok := r.elems[IDOf(n)]
	if !ok || e.Attached {
		return
	}
	e.Placeholder = n
}

// Lookup returns the element registered under id.
func (r *Registry) Lookup(id string) (*Element, bool) {
	e, ok := r.elems[id]
	return e, ok
}

// Len returns the number of registered elements.
func (r *Registry) Len() int { return len(r.elems) }

// Elements returns every registered element in assignment order.
func (r *Registry) Elements() []*Element {
	out := make([]*Element, 0, len(r.elems))
	for _, e := range r.elems {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Element) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// Reset forgets every element. Identifiers keep increasing.
func (r *Registry) Reset() {
	r.elems = make(map[string]*Element)
}
