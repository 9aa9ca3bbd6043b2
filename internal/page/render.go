package page

import (
	"hash/fnv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"

	"github.com/daviddao/threadview/internal/transcript"
)

const glamourGutter = 2

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1")).
			Bold(true)

	otherRoleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387")).
			Bold(true)
)

type cacheEntry struct {
	width int
	sum   uint64
	lines []string
}

// Renderer turns messages into terminal lines. Rendering markdown is the
// expensive part of showing a message, so results are cached per message
// and only redone when the text or width changes.
type Renderer struct {
	markdown bool
	term     *glamour.TermRenderer
	termWrap int
	cache    map[string]cacheEntry

	hits, misses int
}

// NewRenderer returns a renderer. With markdown false, text is only wrapped.
func NewRenderer(markdown bool) *Renderer {
	return &Renderer{markdown: markdown, cache: make(map[string]cacheEntry)}
}

// Render returns the lines of m at width: a role header, the body, and a
// blank separator. Every line fits in width cells.
func (r *Renderer) Render(m transcript.Message, width int) []string {
	width = max(width, 1)
	sum := checksum(m)
	if e, ok := r.cache[m.ID]; ok && e.width == width && e.sum == sum {
		r.hits++
		return e.lines
	}
	r.misses++

	lines := []string{roleStyle(m.Role).Render(m.Role)}
	lines = append(lines, r.body(m.Text, width)...)
	lines = append(lines, "")
	for i, l := range lines {
		if lipgloss.Width(l) > width {
			lines[i] = ansi.Truncate(l, width, "")
		}
	}
	r.cache[m.ID] = cacheEntry{width: width, sum: sum, lines: lines}
	return lines
}

// Cached returns the last rendering of the message id, if any.
func (r *Renderer) Cached(id string) ([]string, bool) {
	e, ok := r.cache[id]
	return e.lines, ok
}

// Forget drops the cached rendering of id.
func (r *Renderer) Forget(id string) { delete(r.cache, id) }

// Stats returns cache hits and misses.
func (r *Renderer) Stats() (hits, misses int) { return r.hits, r.misses }

func (r *Renderer) body(text string, width int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if r.markdown {
		if out, err := r.renderMarkdown(text, width); err == nil {
			return out
		}
	}
	wrapped := wordwrap.String(text, width)
	return strings.Split(strings.ReplaceAll(wrapped, "\r", ""), "\n")
}

func (r *Renderer) renderMarkdown(text string, width int) ([]string, error) {
	wrap := max(width-glamourGutter, 10)
	if r.term == nil || r.termWrap != wrap {
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return nil, err
		}
		r.term, r.termWrap = term, wrap
	}
	out, err := r.term.Render(text)
	if err != nil {
		return nil, err
	}
	out = strings.Trim(out, "\n")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return lines, nil
}

func roleStyle(role string) lipgloss.Style {
	switch role {
	case "user":
		return userStyle
	case "assistant":
		return assistantStyle
	}
	return otherRoleStyle
}

func checksum(m transcript.Message) uint64 {
	h := fnv.New64a()
	h.Write([]byte(m.Role))
	h.Write([]byte{0})
	h.Write([]byte(m.Text))
	return h.Sum64()
}
