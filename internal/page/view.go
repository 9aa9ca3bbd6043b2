package page

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/threadview/internal/dom"
	"github.com/daviddao/threadview/internal/virtualize"
)

var placeholderStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6C7086")).
	Faint(true)

// View renders the rows in the viewport. Mounted messages show their
// rendered lines; placeholders show blank rows of the same height.
func (p *Page) View() string {
	top := int(p.doc.ScrollTop())
	height := int(p.doc.ClientHeight())
	rows := make([]string, 0, height)

	for _, c := range p.thread.Children() {
		off, ok := p.doc.Offset(c)
		if !ok {
			continue
		}
		start, h := int(off), int(p.doc.BoxHeight(c))
		if start+h <= top {
			continue
		}
		if start >= top+height {
			break
		}
		lines := p.nodeLines(c, h)
		for i := max(top-start, 0); i < h && start+i < top+height; i++ {
			rows = append(rows, lines[i])
		}
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

// nodeLines returns exactly h lines for n.
func (p *Page) nodeLines(n *dom.Node, h int) []string {
	var lines []string
	if virtualize.IsPlaceholder(n) {
		if p.Debug && h > 0 {
			lines = []string{placeholderStyle.Render(fmt.Sprintf("┄ %s unmounted (%d rows)", virtualize.IDOf(n), h))}
		}
	} else if id, ok := n.Attr(AttrMessageID); ok {
		lines = p.renderer.Render(p.messages[id], p.width)
	}
	out := make([]string, h)
	copy(out, lines)
	return out
}
