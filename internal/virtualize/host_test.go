package virtualize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daviddao/threadview/internal/dom"
	"github.com/daviddao/threadview/internal/fakeclock"
)

type testHost struct {
	doc      *dom.Document
	main     *dom.Node
	composer *dom.Node
	msg      dom.Selector
}

func newTestHost(clientHeight float64) *testHost {
	doc := dom.NewDocument(clientHeight)
	main := doc.CreateElement("main")
	composer := doc.CreateElement("footer")
	doc.Root().AppendChild(main)
	doc.Root().AppendChild(composer)
	return &testHost{
		doc:      doc,
		main:     main,
		composer: composer,
		msg:      dom.MustParseSelector(DefaultMessageSelector),
	}
}

func (h *testHost) Document() *dom.Document           { return h.doc }
func (h *testHost) FindScrollContainer() ScrollTarget { return nil }
func (h *testHost) FindConversationRoot() *dom.Node   { return h.main }
func (h *testHost) MatchesMessage(n *dom.Node) bool   { return h.msg.Match(n) }

// addMessages appends n messages of the given height.
func (h *testHost) addMessages(n int, height float64) []*dom.Node {
	var out []*dom.Node
	for i := range n {
		m := h.doc.CreateElement("article")
		m.AddClass("message")
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		m.SetAttr("data-message-author-role", role)
		m.SetHeight(height)
		h.main.AppendChild(m)
		out = append(out, m)
	}
	return out
}

func (h *testHost) addStopButton() *dom.Node {
	b := h.doc.CreateElement("button")
	b.SetAttr("data-testid", "stop-button")
	b.SetText("Stop")
	h.composer.AppendChild(b)
	return b
}

// children returns the live children of the conversation root.
func (h *testHost) children() []*dom.Node { return h.main.Children() }

func bootSession(t *testing.T, h *testHost, opts Options) (*Session, *fakeclock.Clock) {
	t.Helper()
	clk := fakeclock.New()
	opts.Clock = clk
	if opts.NewID == nil {
		opts.NewID = func() string { return "test-session" }
	}
	s, err := Boot(h, opts)
	require.NoError(t, err)
	t.Cleanup(s.Teardown)
	return s, clk
}

func settle(clk *fakeclock.Clock) { clk.Settle(10*time.Millisecond, 100) }

// kinds returns the representation of every tracked node in document order.
func kinds(h *testHost) []Kind {
	var out []Kind
	for _, n := range h.children() {
		if IsPlaceholder(n) {
			out = append(out, Placeholder)
		} else {
			out = append(out, Mounted)
		}
	}
	return out
}

func mountedRange(h *testHost) (first, last int) {
	first, last = -1, -1
	for i, k := range kinds(h) {
		if k != Mounted {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	return first, last
}
