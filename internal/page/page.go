// Package page models the conversation screen as a layout tree: one
// message node per transcript message inside a scrollable thread, plus a
// composer that shows a stop control while a reply is generated. It is the
// host a virtualize.Session works on.
package page

import (
	"github.com/daviddao/threadview/internal/dom"
	"github.com/daviddao/threadview/internal/transcript"
	"github.com/daviddao/threadview/internal/virtualize"
)

const (
	// AttrMessageID carries the transcript message id.
	AttrMessageID = "data-message-id"
	attrRole      = "data-message-author-role"

	streamingClass = "result-streaming"
	stopLabel      = "Stop generating"
)

// SyncResult reports what a Sync changed.
type SyncResult struct {
	// SessionChanged is set when the snapshot belongs to a different
	// conversation; the page was cleared before the new messages were added.
	SessionChanged bool
	Added          int
	Updated        int
}

// Page is the conversation screen. Nodes are addressed by transcript id and
// retained here even while a session has swapped them out.
type Page struct {
	doc      *dom.Document
	thread   *dom.Node
	composer *dom.Node
	stop     *dom.Node
	msgSel   dom.Selector

	renderer *Renderer
	width    int

	sessionID string
	order     []string
	nodes     map[string]*dom.Node
	messages  map[string]transcript.Message
	streaming bool

	// Follow keeps the view pinned to the newest message while the user
	// is at the bottom.
	Follow bool
	// Debug outlines placeholders in View.
	Debug bool
}

// New creates an empty page. messageSelector identifies message nodes; an
// empty string uses the engine default.
func New(width, height int, renderer *Renderer, messageSelector string) (*Page, error) {
	if messageSelector == "" {
		messageSelector = virtualize.DefaultMessageSelector
	}
	sel, err := dom.ParseSelector(messageSelector)
	if err != nil {
		return nil, err
	}
	if renderer == nil {
		renderer = NewRenderer(true)
	}
	doc := dom.NewDocument(float64(max(height, 0)))
	thread := doc.CreateElement("main")
	thread.AddClass("thread")
	composer := doc.CreateElement("footer")
	composer.AddClass("composer")
	doc.Root().AppendChild(thread)
	doc.Root().AppendChild(composer)

	p := &Page{
		doc:      doc,
		thread:   thread,
		composer: composer,
		msgSel:   sel,
		renderer: renderer,
		width:    max(width, 1),
		nodes:    make(map[string]*dom.Node),
		messages: make(map[string]transcript.Message),
		Follow:   true,
	}
	doc.ObserveMutations(thread, p.onMutation)
	return p, nil
}

// Document implements virtualize.Host.
func (p *Page) Document() *dom.Document { return p.doc }

// FindScrollContainer implements virtualize.Host. The whole page scrolls.
func (p *Page) FindScrollContainer() virtualize.ScrollTarget { return p.doc }

// FindConversationRoot implements virtualize.Host.
func (p *Page) FindConversationRoot() *dom.Node { return p.thread }

// MatchesMessage implements virtualize.Host.
func (p *Page) MatchesMessage(n *dom.Node) bool { return p.msgSel.Match(n) }

// SessionID returns the conversation the page shows.
func (p *Page) SessionID() string { return p.sessionID }

// Len returns the number of messages on the page.
func (p *Page) Len() int { return len(p.order) }

// Streaming reports whether the stop control is shown.
func (p *Page) Streaming() bool { return p.streaming }

// Width returns the render width.
func (p *Page) Width() int { return p.width }

// SessionChanged reports whether snap belongs to another conversation than
// the one shown. Callers tear down their session before syncing such a
// snapshot.
func (p *Page) SessionChanged(snap *transcript.Snapshot) bool {
	return snap.SessionID != p.sessionID
}

// Sync brings the page up to date with snap.
func (p *Page) Sync(snap *transcript.Snapshot) SyncResult {
	var res SyncResult
	follow := p.Follow && virtualize.IsAtBottom(p.doc, 1)

	if p.SessionChanged(snap) {
		p.reset()
		p.sessionID = snap.SessionID
		res.SessionChanged = true
	}

	for _, m := range snap.Messages {
		n, ok := p.nodes[m.ID]
		if !ok {
			p.append(m)
			res.Added++
			continue
		}
		if prev := p.messages[m.ID]; prev == m {
			continue
		}
		p.messages[m.ID] = m
		n.SetAttr(attrRole, m.Role)
		p.measure(m.ID)
		res.Updated++
	}
	p.setStreaming(snap.Streaming)

	if follow {
		p.doc.ScrollToBottom()
	}
	return res
}

// Resize changes the viewport. A new width re-renders the messages in the
// tree, so heights change; it reports whether that happened. Swapped-out
// messages keep their placeholder height until they are restored.
func (p *Page) Resize(width, height int) bool {
	p.doc.SetClientHeight(float64(max(height, 0)))
	width = max(width, 1)
	if width == p.width {
		return false
	}
	follow := p.Follow && virtualize.IsAtBottom(p.doc, 1)
	p.width = width
	for _, id := range p.order {
		p.measure(id)
	}
	if follow {
		p.doc.ScrollToBottom()
	}
	return true
}

// ScrollBy moves the viewport by delta rows.
func (p *Page) ScrollBy(delta int) { p.doc.ScrollBy(float64(delta)) }

// ScrollToTop moves to the first row.
func (p *Page) ScrollToTop() { p.doc.ScrollTo(0) }

// ScrollToBottom moves to the last row.
func (p *Page) ScrollToBottom() { p.doc.ScrollToBottom() }

func (p *Page) append(m transcript.Message) {
	n := p.doc.CreateElement("article")
	n.AddClass("message")
	n.SetAttr(attrRole, m.Role)
	n.SetAttr(AttrMessageID, m.ID)
	n.SetHeight(float64(len(p.renderer.Render(m, p.width))))

	if last := p.lastNode(); last != nil {
		last.RemoveClass(streamingClass)
	}
	p.order = append(p.order, m.ID)
	p.nodes[m.ID] = n
	p.messages[m.ID] = m
	p.thread.AppendChild(n)
}

// measure renders the message and sets its node's height. A node that is
// not in the tree keeps its height until it returns.
func (p *Page) measure(id string) {
	n := p.nodes[id]
	if !n.Connected() {
		return
	}
	n.SetHeight(float64(len(p.renderer.Render(p.messages[id], p.width))))
}

// onMutation keeps the render cache to the messages in the tree: a message
// swapped out is forgotten and rendered again when it returns.
func (p *Page) onMutation(r dom.MutationRecord) {
	for _, n := range r.Removed {
		if id, ok := n.Attr(AttrMessageID); ok && !n.Connected() {
			p.renderer.Forget(id)
		}
	}
	for _, n := range r.Added {
		if id, ok := n.Attr(AttrMessageID); ok && p.nodes[id] == n {
			p.measure(id)
		}
	}
}

func (p *Page) lastNode() *dom.Node {
	if len(p.order) == 0 {
		return nil
	}
	return p.nodes[p.order[len(p.order)-1]]
}

func (p *Page) setStreaming(streaming bool) {
	if last := p.lastNode(); last != nil {
		if streaming {
			last.AddClass(streamingClass)
		} else {
			last.RemoveClass(streamingClass)
		}
	}
	if streaming == p.streaming {
		return
	}
	p.streaming = streaming
	if !streaming {
		p.stop.Remove()
		p.stop = nil
		return
	}
	b := p.doc.CreateElement("button")
	b.SetAttr("data-testid", "stop-button")
	b.SetAttr("aria-label", stopLabel)
	b.SetText(stopLabel)
	p.composer.AppendChild(b)
	p.stop = b
}

// reset removes every message. Live nodes may be placeholders, so the
// thread is emptied by child rather than by retained node.
func (p *Page) reset() {
	for _, c := range p.thread.Children() {
		c.Remove()
	}
	for _, id := range p.order {
		p.renderer.Forget(id)
		p.doc.Release(p.nodes[id])
	}
	p.order = nil
	clear(p.nodes)
	clear(p.messages)
	p.setStreaming(false)
}
