package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/daviddao/threadview/internal/config"
	"github.com/daviddao/threadview/internal/metrics"
	"github.com/daviddao/threadview/internal/page"
	"github.com/daviddao/threadview/internal/transcript"
	"github.com/daviddao/threadview/internal/virtualize"
)

// --- Messages ---

// loopMsg carries a clock callback onto the program goroutine, where the
// session and its page live.
type loopMsg struct{ fn func() }

type bootMsg struct{}

var errTranscriptRemoved = errors.New("transcript removed")

// fileChangedMsg asks for a reload. The polling fallback sends the zero
// value, a plain write.
type fileChangedMsg struct {
	change transcript.Change
}

type snapshotReadyMsg struct {
	snap *transcript.Snapshot
	err  error
}

type tickMsg struct{}

// --- Key bindings ---

type keyMap struct {
	Quit     key.Binding
	Refresh  key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Toggle   key.Binding
	Debug    key.Binding
	Help     key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("b/pgup", "page up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "f", " "), key.WithHelp("f/pgdn", "page down")),
	Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
	Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
	Toggle:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "virtualize on/off")),
	Debug:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "show placeholders")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Debug, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Toggle, k.Debug, k.Refresh, k.Help, k.Quit},
	}
}

const statusHelp = "j/k: scroll | g/G: ends | v: virtualize | ?: help | q: quit"

// --- Model ---

// liveState is written by session callbacks. It sits behind a pointer so
// callbacks registered by one copy of the model are seen by later copies.
type liveState struct {
	activated bool
	last      virtualize.PassResult
}

type uiModel struct {
	cfg     *config.Config
	path    string
	watcher *transcript.Watcher
	snap    *transcript.Snapshot
	page    *page.Page
	session *virtualize.Session
	clock   virtualize.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	live    *liveState

	width  int
	height int

	help     help.Model
	showHelp bool

	lastRefresh time.Time
	err         error
}

func newModel(cfg *config.Config, path string, w *transcript.Watcher, snap *transcript.Snapshot,
	clock virtualize.Clock, mx *metrics.Metrics, logger *slog.Logger) (uiModel, error) {
	p, err := page.New(80, 0, page.NewRenderer(!cfg.Plain), cfg.Virtualize.MessageSelector)
	if err != nil {
		return uiModel{}, err
	}
	p.Debug = cfg.Virtualize.Debug
	p.Sync(snap)
	p.ScrollToBottom()

	return uiModel{
		cfg:         cfg,
		path:        path,
		watcher:     w,
		snap:        snap,
		page:        p,
		clock:       clock,
		metrics:     mx,
		logger:      logger,
		live:        &liveState{},
		help:        help.New(),
		lastRefresh: clock.Now(),
	}, nil
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return bootMsg{} },
		tickEvery(),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loopMsg:
		msg.fn()

	case bootMsg:
		if m.session == nil {
			m.boot()
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.close()
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.page.ScrollBy(-1)
		case key.Matches(msg, keys.Down):
			m.page.ScrollBy(1)
		case key.Matches(msg, keys.PageUp):
			m.page.ScrollBy(-m.pageStep())
		case key.Matches(msg, keys.PageDown):
			m.page.ScrollBy(m.pageStep())
		case key.Matches(msg, keys.Top):
			m.page.ScrollToTop()
		case key.Matches(msg, keys.Bottom):
			m.page.ScrollToBottom()
		case key.Matches(msg, keys.Toggle):
			if m.session != nil {
				m.session.SetEnabled(!m.session.Enabled())
			}
		case key.Matches(msg, keys.Debug):
			m.page.Debug = !m.page.Debug
		case key.Matches(msg, keys.Refresh):
			return m, m.refreshSnapshot()
		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.page.Resize(msg.Width, m.contentHeight())
		if m.session != nil {
			m.session.HandleResize()
		}

	case fileChangedMsg:
		if msg.change.Kind == transcript.Removed {
			// Keep showing the last snapshot until the file comes back.
			m.err = errTranscriptRemoved
			m.logger.Warn("threadview: transcript removed", "path", m.path)
			return m, nil
		}
		return m, m.refreshSnapshot()

	case snapshotReadyMsg:
		if msg.err != nil {
			m.err = msg.err
			m.logger.Warn("threadview: reload transcript", "path", m.path, "err", msg.err)
			break
		}
		if msg.snap != nil {
			m.applySnapshot(msg.snap)
		}

	case tickMsg:
		return m, tickEvery()
	}

	return m, nil
}

// applySnapshot syncs the page with snap. A snapshot from another
// conversation gets a fresh session, so no identity carries across.
func (m *uiModel) applySnapshot(snap *transcript.Snapshot) {
	changed := m.page.SessionChanged(snap)
	if changed && m.session != nil {
		m.session.Teardown()
		m.session = nil
	}
	res := m.page.Sync(snap)
	m.snap = snap
	m.lastRefresh = m.clock.Now()
	m.err = nil
	m.logger.Debug("threadview: synced transcript",
		"added", res.Added, "updated", res.Updated,
		"session_changed", res.SessionChanged, "streaming", snap.Streaming)
	if changed {
		m.page.ScrollToBottom()
		m.boot()
	}
}

func (m *uiModel) boot() {
	live := m.live
	*live = liveState{}
	mx := m.metrics
	s, err := virtualize.Boot(m.page, virtualize.Options{
		Config: m.cfg.Virtualize,
		Clock:  m.clock,
		Logger: m.logger,
		OnActivate: func(virtualize.StatsSnapshot) {
			live.activated = true
		},
		OnPass: func(r virtualize.PassResult) {
			live.last = r
			if mx != nil {
				mx.Observe(r)
			}
		},
	})
	if err != nil {
		m.err = err
		m.logger.Error("threadview: boot session", "err", err)
		return
	}
	m.session = s
	if mx != nil {
		mx.SessionBooted()
	}
}

func (m *uiModel) close() {
	if m.session != nil {
		m.session.Teardown()
	}
	if m.watcher != nil {
		m.watcher.Close()
	}
}

func (m uiModel) refreshSnapshot() tea.Cmd {
	path := m.path
	return func() tea.Msg {
		snap, err := transcript.Load(path)
		return snapshotReadyMsg{snap: snap, err: err}
	}
}

// contentHeight is the number of rows left for messages after the title
// and status bars.
func (m uiModel) contentHeight() int {
	return max(m.height-2, 0)
}

func (m uiModel) pageStep() int {
	return max(m.contentHeight()-1, 1)
}

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(lipgloss.Color("#A6E3A1")).
			Padding(0, 1)

	streamingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')

	content := truncateLines(m.page.View(), m.width)
	b.WriteString(content)

	// Pad to fill screen.
	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-1 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("threadview")
	if m.live != nil && m.live.activated {
		title += " " + badgeStyle.Render("virtualized")
	}

	var parts []string
	if m.session != nil {
		st := m.session.StatsSnapshot()
		if st.IsStreaming {
			parts = append(parts, streamingStyle.Render("● streaming"))
		}
		if st.Enabled {
			parts = append(parts, dimStyle.Render(fmt.Sprintf("%s msgs | %s mounted | %d%% saved",
				humanize.Comma(int64(st.TotalTracked)),
				humanize.Comma(int64(st.MountedCount)),
				st.PercentSaved)))
		} else {
			parts = append(parts, dimStyle.Render(fmt.Sprintf("%s msgs | virtualization off",
				humanize.Comma(int64(m.page.Len())))))
		}
	} else {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%s msgs", humanize.Comma(int64(m.page.Len())))))
	}
	stats := strings.Join(parts, "  ")

	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

func (m uiModel) renderStatusBar() string {
	left := " " + statusHelp
	right := fmt.Sprintf("refreshed %s ", humanize.Time(m.lastRefresh))
	if m.err != nil {
		right = errorStyle.Render(fmt.Sprintf("error: %v ", m.err))
	}
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return truncateLines(statusBarStyle.Render(left+gap+right), m.width)
}

// truncateLines clips every line to width display columns so the terminal
// never wraps. Measurement is ANSI-aware.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}
