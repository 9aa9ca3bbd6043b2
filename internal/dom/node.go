// Package dom is a small in-memory layout tree that stands in for the host
// page of a conversation view.
//
// The tree itself is an x/net/html element tree; a Node wraps one element
// and adds what a browser would compute for it: an intrinsic height and a
// laid-out position. Nodes stack vertically: a node occupies its own height
// followed by the heights of its element children, in order. The whole tree
// scrolls as a single region. Structural changes, height changes, and
// scrolling are reported to observers synchronously, on the caller's
// goroutine. A Document is not safe for concurrent use.
package dom

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Node is one element of the layout tree.
type Node struct {
	h      *html.Node
	doc    *Document
	height float64

	// Layout results, valid while the owning document is clean.
	top float64
	box float64
}

// HTML returns the underlying element. Callers must not restructure it
// directly; use the Node methods so layout and observers stay in sync.
func (n *Node) HTML() *html.Node { return n.h }

// Tag returns the element name, lower case.
func (n *Node) Tag() string { return n.h.Data }

// OuterHTML renders the node and its subtree as markup.
func (n *Node) OuterHTML() string {
	var b strings.Builder
	if err := html.Render(&b, n.h); err != nil {
		return ""
	}
	return b.String()
}

// Parent returns the node's parent, or nil when detached or the root.
func (n *Node) Parent() *Node {
	if n.doc == nil || n == n.doc.root {
		return nil
	}
	return n.doc.wrap(n.h.Parent)
}

// Children returns the node's element children.
func (n *Node) Children() []*Node {
	var out []*Node
	for c := n.h.FirstChild; c != nil; c = c.NextSibling {
		if cn := n.doc.wrap(c); cn != nil {
			out = append(out, cn)
		}
	}
	return out
}

// Document returns the document that created the node.
func (n *Node) Document() *Document { return n.doc }

// Connected reports whether the node is reachable from its document root.
func (n *Node) Connected() bool {
	if n.doc == nil {
		return false
	}
	for p := n.h; p != nil; p = p.Parent {
		if p == n.doc.root.h {
			return true
		}
	}
	return false
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	if other == nil {
		return false
	}
	for p := other.h; p != nil; p = p.Parent {
		if p == n.h {
			return true
		}
	}
	return false
}

// Attr returns the attribute value and whether it is set.
func (n *Node) Attr(name string) (string, bool) {
	return attr(n.h, name)
}

func attr(h *html.Node, name string) (string, bool) {
	for _, a := range h.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets an attribute. Attributes do not affect layout.
func (n *Node) SetAttr(name, value string) {
	for i, a := range n.h.Attr {
		if a.Namespace == "" && a.Key == name {
			n.h.Attr[i].Val = value
			return
		}
	}
	n.h.Attr = append(n.h.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute.
func (n *Node) RemoveAttr(name string) {
	n.h.Attr = slices.DeleteFunc(n.h.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == name
	})
}

func (n *Node) classes() []string {
	v, _ := n.Attr("class")
	return strings.Fields(v)
}

// AddClass adds a class if not already present.
func (n *Node) AddClass(class string) {
	if n.HasClass(class) {
		return
	}
	n.SetAttr("class", strings.Join(append(n.classes(), class), " "))
}

// RemoveClass removes a class.
func (n *Node) RemoveClass(class string) {
	if !n.HasClass(class) {
		return
	}
	rest := slices.DeleteFunc(n.classes(), func(c string) bool { return c == class })
	if len(rest) == 0 {
		n.RemoveAttr("class")
		return
	}
	n.SetAttr("class", strings.Join(rest, " "))
}

// HasClass reports whether the node carries class.
func (n *Node) HasClass(class string) bool { return slices.Contains(n.classes(), class) }

// Text returns the node's own text content, excluding descendants.
func (n *Node) Text() string {
	var b strings.Builder
	for c := n.h.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// TextContent returns the text of the node and all descendants, space
// joined, ignoring whitespace-only runs.
func (n *Node) TextContent() string {
	var parts []string
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.TextNode {
			if t := strings.TrimSpace(h.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.h)
	return strings.Join(parts, " ")
}

// SetText replaces the node's own text. Text does not affect layout; callers
// that re-measure must follow with SetHeight.
func (n *Node) SetText(text string) {
	for c := n.h.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			n.h.RemoveChild(c)
		}
		c = next
	}
	if text == "" {
		return
	}
	t := &html.Node{Type: html.TextNode, Data: text}
	n.h.InsertBefore(t, n.h.FirstChild)
}

// Height returns the node's own intrinsic height, excluding children.
func (n *Node) Height() float64 { return n.height }

// SetHeight changes the node's own height and notifies resize observers.
func (n *Node) SetHeight(h float64) {
	if h < 0 {
		h = 0
	}
	old := n.height
	if old == h {
		return
	}
	n.height = h
	if n.doc == nil {
		return
	}
	if n.Connected() {
		n.doc.invalidate()
	}
	n.doc.notifyResize(ResizeRecord{Node: n, OldHeight: old, NewHeight: h})
}

// Hidden reports whether the node itself carries the hidden attribute.
// Hidden nodes still occupy their height.
func (n *Node) Hidden() bool {
	_, ok := n.Attr("hidden")
	return ok
}

// SetHidden sets or clears the hidden attribute.
func (n *Node) SetHidden(hidden bool) {
	if hidden {
		n.SetAttr("hidden", "")
	} else {
		n.RemoveAttr("hidden")
	}
}

// Visible reports whether the node is connected and neither it nor any
// ancestor is hidden.
func (n *Node) Visible() bool {
	if !n.Connected() {
		return false
	}
	for p := n.h; p != nil; p = p.Parent {
		if _, hidden := attr(p, "hidden"); hidden {
			return false
		}
		if p == n.doc.root.h {
			break
		}
	}
	return true
}

// AppendChild appends child, detaching it from any previous parent first.
func (n *Node) AppendChild(child *Node) {
	if child == nil || child == n || child.Contains(n) {
		return
	}
	child.detach()
	n.h.AppendChild(child.h)
	if n.doc != nil && n.Connected() {
		n.doc.invalidate()
		n.doc.notifyMutation(MutationRecord{Target: n, Added: []*Node{child}})
	}
}

// Remove detaches the node from its parent. Removing a detached node is a
// no-op.
func (n *Node) Remove() {
	if n.h.Parent == nil {
		return
	}
	parent := n.Parent()
	wasConnected := n.Connected()
	n.detach()
	if wasConnected && n.doc != nil {
		n.doc.invalidate()
		n.doc.notifyMutation(MutationRecord{Target: parent, Removed: []*Node{n}})
	}
}

// ReplaceWith substitutes other for n at n's position. It returns false,
// doing nothing, when n is detached. other is detached from any previous
// position first.
func (n *Node) ReplaceWith(other *Node) bool {
	if n.h.Parent == nil || other == nil || other == n || other.Contains(n) {
		return false
	}
	parent := n.Parent()
	moved := other.h.Parent != nil && other.Connected()
	other.detach()
	n.h.Parent.InsertBefore(other.h, n.h)
	n.detach()

	d := n.doc
	if d == nil || parent == nil || !parent.Connected() {
		return true
	}
	// Swapping a leaf for a leaf of the same height leaves every other
	// offset untouched.
	if !moved && !d.dirty && !hasElementChild(other.h) && !hasElementChild(n.h) && other.height == n.box {
		other.top = n.top
		other.box = other.height
	} else {
		d.invalidate()
	}
	d.notifyMutation(MutationRecord{Target: parent, Added: []*Node{other}, Removed: []*Node{n}})
	return true
}

func (n *Node) detach() {
	if p := n.h.Parent; p != nil {
		p.RemoveChild(n.h)
	}
}

func hasElementChild(h *html.Node) bool {
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}

// Walk visits root and its element descendants in document order. Returning
// false from fn skips the visited node's children.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, c := range root.Children() {
		Walk(c, fn)
	}
}
