package dom

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// AttrHeight gives an element parsed from markup its intrinsic height.
const AttrHeight = "data-height"

// Rect is a node's vertical extent relative to the top of the viewport.
type Rect struct {
	Top    float64
	Bottom float64
	Height float64
}

// MutationRecord describes one structural change under Target.
type MutationRecord struct {
	Target  *Node
	Added   []*Node
	Removed []*Node
}

// ResizeRecord describes a change of a node's own height.
type ResizeRecord struct {
	Node      *Node
	OldHeight float64
	NewHeight float64
}

type mutationObserver struct {
	root *Node
	fn   func(MutationRecord)
}

type resizeObserver struct {
	node *Node
	fn   func(ResizeRecord)
}

// Document owns a tree of nodes, its layout, and the scroll state of the
// single scroll region the tree is shown through.
type Document struct {
	root  *Node
	dirty bool
	nodes map[*html.Node]*Node

	scrollTop    float64
	clientHeight float64

	nextObserver int
	mutationObs  map[int]mutationObserver
	resizeObs    map[int]resizeObserver
	scrollObs    map[int]func(top float64)
}

// NewDocument creates an empty document whose viewport is clientHeight tall.
func NewDocument(clientHeight float64) *Document {
	d := newDocument(clientHeight)
	d.root = d.CreateElement("body")
	return d
}

func newDocument(clientHeight float64) *Document {
	return &Document{
		clientHeight: max(clientHeight, 0),
		nodes:        make(map[*html.Node]*Node),
		mutationObs:  make(map[int]mutationObserver),
		resizeObs:    make(map[int]resizeObserver),
		scrollObs:    make(map[int]func(float64)),
		dirty:        true,
	}
}

// ParseHTML builds a document from markup. The body element becomes the
// root; every element takes its intrinsic height from its data-height
// attribute, zero when absent.
func ParseHTML(r io.Reader, clientHeight float64) (*Document, error) {
	top, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	body := findElement(top, atom.Body)
	if body == nil {
		return nil, fmt.Errorf("dom: parse: no body element")
	}
	d := newDocument(clientHeight)
	d.root = d.wrap(body)
	var walk func(*html.Node) error
	walk = func(h *html.Node) error {
		if n := d.wrap(h); n != nil {
			if v, ok := n.Attr(AttrHeight); ok {
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					return fmt.Errorf("dom: parse: <%s %s=%q>: %w", n.Tag(), AttrHeight, v, err)
				}
				n.height = max(f, 0)
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(body); err != nil {
		return nil, err
	}
	return d, nil
}

func findElement(h *html.Node, a atom.Atom) *html.Node {
	if h.Type == html.ElementNode && h.DataAtom == a {
		return h
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// Root returns the document root.
func (d *Document) Root() *Node { return d.root }

// CreateElement creates a detached node owned by d.
func (d *Document) CreateElement(tag string) *Node {
	tag = strings.ToLower(tag)
	h := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	n := &Node{h: h, doc: d}
	d.nodes[h] = n
	return n
}

// wrap returns the Node for an element, creating it on first sight. Non
// element nodes map to nil.
func (d *Document) wrap(h *html.Node) *Node {
	if h == nil || h.Type != html.ElementNode {
		return nil
	}
	if n, ok := d.nodes[h]; ok {
		return n
	}
	n := &Node{h: h, doc: d}
	d.nodes[h] = n
	return n
}

// Release drops the bookkeeping for a detached subtree that will not be
// inserted again. Releasing a connected node is a no-op.
func (d *Document) Release(n *Node) {
	if n == nil || n.doc != d || n.Connected() {
		return
	}
	Walk(n, func(c *Node) bool {
		delete(d.nodes, c.h)
		return true
	})
}

func (d *Document) invalidate() { d.dirty = true }

func (d *Document) layout() {
	if !d.dirty {
		return
	}
	var walk func(n *Node, y float64) float64
	walk = func(n *Node, y float64) float64 {
		n.top = y
		h := n.height
		for c := n.h.FirstChild; c != nil; c = c.NextSibling {
			if cn := d.wrap(c); cn != nil {
				h += walk(cn, y+h)
			}
		}
		n.box = h
		return h
	}
	walk(d.root, 0)
	d.dirty = false
}

// Offset returns the absolute top of n within the scrollable content.
func (d *Document) Offset(n *Node) (float64, bool) {
	if n == nil || n.doc != d || !n.Connected() {
		return 0, false
	}
	d.layout()
	return n.top, true
}

// Rect returns n's extent relative to the viewport top. ok is false for
// nodes that are not connected.
func (d *Document) Rect(n *Node) (r Rect, ok bool) {
	top, ok := d.Offset(n)
	if !ok {
		return Rect{}, false
	}
	top -= d.ScrollTop()
	return Rect{Top: top, Bottom: top + n.box, Height: n.box}, true
}

// BoxHeight returns the laid-out height of n including its children.
func (d *Document) BoxHeight(n *Node) float64 {
	if n == nil {
		return 0
	}
	if !n.Connected() {
		h := n.height
		for _, c := range n.Children() {
			h += d.BoxHeight(c)
		}
		return h
	}
	d.layout()
	return n.box
}

// ScrollHeight returns the total height of the content.
func (d *Document) ScrollHeight() float64 {
	d.layout()
	return d.root.box
}

// ClientHeight returns the viewport height.
func (d *Document) ClientHeight() float64 { return d.clientHeight }

// ViewportTop returns the top of the viewport in the coordinate space used by
// Rect. The document scrolls as a whole, so it is always zero.
func (d *Document) ViewportTop() float64 { return 0 }

// SetClientHeight resizes the viewport.
func (d *Document) SetClientHeight(h float64) {
	d.clientHeight = max(h, 0)
}

func (d *Document) maxScroll() float64 {
	return max(d.ScrollHeight()-d.clientHeight, 0)
}

// ScrollTop returns the current scroll offset, clamped to the content.
func (d *Document) ScrollTop() float64 {
	return min(d.scrollTop, d.maxScroll())
}

// ScrollTo sets the scroll offset, clamped to the content, and notifies
// scroll listeners when it changes.
func (d *Document) ScrollTo(top float64) {
	top = min(max(top, 0), d.maxScroll())
	if top == d.scrollTop {
		return
	}
	d.scrollTop = top
	for _, id := range slices.Sorted(maps.Keys(d.scrollObs)) {
		if fn, ok := d.scrollObs[id]; ok {
			fn(top)
		}
	}
}

// ScrollBy scrolls relative to the current offset.
func (d *Document) ScrollBy(delta float64) { d.ScrollTo(d.ScrollTop() + delta) }

// ScrollToBottom scrolls to the maximum offset.
func (d *Document) ScrollToBottom() { d.ScrollTo(d.maxScroll()) }

// ObserveMutations registers fn for structural changes under root (subtree
// included). The returned func unregisters it.
func (d *Document) ObserveMutations(root *Node, fn func(MutationRecord)) func() {
	id := d.nextID()
	d.mutationObs[id] = mutationObserver{root: root, fn: fn}
	return func() { delete(d.mutationObs, id) }
}

// ObserveResize registers fn for height changes of node.
func (d *Document) ObserveResize(node *Node, fn func(ResizeRecord)) func() {
	id := d.nextID()
	d.resizeObs[id] = resizeObserver{node: node, fn: fn}
	return func() { delete(d.resizeObs, id) }
}

// OnScroll registers fn for scroll offset changes.
func (d *Document) OnScroll(fn func(top float64)) func() {
	id := d.nextID()
	d.scrollObs[id] = fn
	return func() { delete(d.scrollObs, id) }
}

func (d *Document) nextID() int {
	d.nextObserver++
	return d.nextObserver
}

func (d *Document) notifyMutation(rec MutationRecord) {
	for _, id := range slices.Sorted(maps.Keys(d.mutationObs)) {
		obs, ok := d.mutationObs[id]
		if !ok {
			continue
		}
		if obs.root == nil || obs.root.Contains(rec.Target) {
			obs.fn(rec)
		}
	}
}

func (d *Document) notifyResize(rec ResizeRecord) {
	for _, id := range slices.Sorted(maps.Keys(d.resizeObs)) {
		obs, ok := d.resizeObs[id]
		if ok && obs.node == rec.Node {
			obs.fn(rec)
		}
	}
}

// QuerySelectorAll returns the descendants of root matching sel, in
// document order. root itself is not considered.
func (d *Document) QuerySelectorAll(root *Node, sel Selector) []*Node {
	if root == nil {
		root = d.root
	}
	var out []*Node
	Walk(root, func(n *Node) bool {
		if n != root && sel.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// QuerySelector returns the first descendant of root matching sel.
func (d *Document) QuerySelector(root *Node, sel Selector) *Node {
	if all := d.QuerySelectorAll(root, sel); len(all) > 0 {
		return all[0]
	}
	return nil
}
