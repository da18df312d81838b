package tui

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cellviewer/internal/models"
	"cellviewer/pkg/browser"
	"cellviewer/pkg/playback"
	"cellviewer/pkg/session"
	"cellviewer/pkg/visualization"
)

// maxInterval is the slowest cadence reachable with the - key
const maxInterval = 2 * time.Second

// message types

type tickMsg struct {
	tick playback.Tick
}

type loadMsg struct {
	path string
}

// Options configure the viewer
type Options struct {
	Session *session.Session

	// Browser, when set, enables next/previous file navigation
	Browser *browser.Browser

	// Path is loaded on start; defaults to the browser's current file
	Path string

	PlaybackInterval time.Duration

	// ExportDir receives exports and snapshots; empty means next to the stack
	ExportDir string

	Logger *slog.Logger
}

// model is a pointer model: the session reports changes through the
// Observer methods while Update runs.
type model struct {
	sess      *session.Session
	clock     *playback.Clock
	browser   *browser.Browser
	viewer    *visualization.Viewer
	help      help.Model
	log       *slog.Logger
	exportDir string
	initial   string

	// Latest session notifications
	frame    models.FrameUpdate
	status   models.StatusUpdate
	stack    models.StackUpdate
	interval models.IntervalUpdate

	composite bool
	width     int
	height    int
	ready     bool
	quitting  bool
}

func newModel(opts Options) *model {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &model{
		sess:      opts.Session,
		clock:     playback.New(opts.Session, opts.PlaybackInterval),
		browser:   opts.Browser,
		viewer:    visualization.NewViewer(80, 20),
		help:      help.New(),
		log:       log,
		exportDir: opts.ExportDir,
		initial:   opts.Path,
		stack:     models.StackUpdate{MinFrame: -1, MaxFrame: -1},
		interval:  models.IntervalUpdate{Start: -1, End: -1},
	}
	if m.initial == "" && m.browser != nil {
		m.initial = m.browser.Current()
	}
	m.sess.Subscribe(m)
	return m
}

// Run starts the viewer and blocks until it exits.
func Run(opts Options) error {
	m := newModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// Observer

func (m *model) FrameChanged(u models.FrameUpdate) { m.frame = u }

func (m *model) StatusChanged(u models.StatusUpdate) {
	m.status = u
	if u.Err != nil {
		m.log.Debug("status", "message", u.Message)
	}
}

func (m *model) StackChanged(u models.StackUpdate) {
	m.stack = u
	m.composite = false
	if !u.HasStack {
		m.frame = models.FrameUpdate{}
		m.clock.Stop()
	}
}

func (m *model) IntervalChanged(u models.IntervalUpdate) { m.interval = u }

// Init loads the initial stack.
func (m *model) Init() tea.Cmd {
	if m.initial == "" {
		return nil
	}
	path := m.initial
	return func() tea.Msg { return loadMsg{path: path} }
}

// Update handles messages.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.viewer.Resize(m.panelWidth(), m.panelHeight())
		return m, nil

	case loadMsg:
		// Playback never carries over to another stack
		m.clock.Stop()
		_, _ = m.sess.Load(msg.path)
		return m, nil

	case tickMsg:
		next, ok := m.clock.Handle(msg.tick)
		if !ok {
			return m, nil
		}
		return m, m.schedule(next)

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	return m, nil
}

// handleKey maps bindings onto session and clock operations. Failures are
// reported by the session through StatusChanged.
func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		m.clock.Stop()
		return tea.Quit

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, keys.Prev):
		m.sess.StepFrame(-1)

	case key.Matches(msg, keys.Next):
		m.sess.StepFrame(1)

	case key.Matches(msg, keys.First):
		_ = m.sess.SetFrame(0)

	case key.Matches(msg, keys.Last):
		_ = m.sess.SetFrame(m.sess.Frames() - 1)

	case key.Matches(msg, keys.Play):
		if t, ok := m.clock.Toggle(); ok {
			return m.schedule(t)
		}

	case key.Matches(msg, keys.Faster):
		return m.setCadence(m.clock.Interval() / 2)

	case key.Matches(msg, keys.Slower):
		return m.setCadence(min(m.clock.Interval()*2, maxInterval))

	case key.Matches(msg, keys.Channel):
		if n := m.sess.Channels(); n > 1 {
			m.composite = false
			_ = m.sess.SetChannel((m.sess.Channel() + 1) % n)
		}

	case key.Matches(msg, keys.Composite):
		if m.sess.CompositeFrame() != nil {
			m.composite = !m.composite
		}

	case key.Matches(msg, keys.MarkStart):
		_ = m.sess.MarkStartHere()

	case key.Matches(msg, keys.MarkEnd):
		_ = m.sess.MarkEndHere()

	case key.Matches(msg, keys.Clear):
		m.sess.ClearInterval()

	case key.Matches(msg, keys.Export):
		_ = m.sess.ExportInterval(m.sess.ExportPath(m.exportDir))

	case key.Matches(msg, keys.Snapshot):
		m.snapshot()

	case key.Matches(msg, keys.NextFile):
		if m.browser != nil {
			if path, ok := m.browser.Next(); ok {
				return loadCmd(path)
			}
		}

	case key.Matches(msg, keys.PrevFile):
		if m.browser != nil {
			if path, ok := m.browser.Prev(); ok {
				return loadCmd(path)
			}
		}
	}
	return nil
}

func loadCmd(path string) tea.Cmd {
	return func() tea.Msg { return loadMsg{path: path} }
}

func (m *model) schedule(t playback.Tick) tea.Cmd {
	return tea.Tick(m.clock.Interval(), func(time.Time) tea.Msg {
		return tickMsg{tick: t}
	})
}

func (m *model) setCadence(d time.Duration) tea.Cmd {
	t, running := m.clock.SetInterval(d)
	m.status = models.StatusUpdate{Message: fmt.Sprintf("Playback interval %v", m.clock.Interval())}
	if !running {
		return nil
	}
	return m.schedule(t)
}

// shown returns the image currently on screen
func (m *model) shown() image.Image {
	if m.composite {
		if img := m.sess.CompositeFrame(); img != nil {
			return img
		}
	}
	if m.frame.Display == nil {
		return nil
	}
	return m.frame.Display
}

// snapshot saves the frame on screen as PNG
func (m *model) snapshot() {
	img := m.shown()
	if img == nil {
		m.status = models.StatusUpdate{Message: "No frame to save", Err: session.ErrNoStackLoaded}
		return
	}

	dir := m.exportDir
	if dir == "" {
		dir = filepath.Dir(m.sess.Path())
	}
	base := strings.TrimSuffix(filepath.Base(m.sess.Path()), filepath.Ext(m.sess.Path()))
	name := fmt.Sprintf("%s_frame_%03d.png", base, m.frame.Frame)
	if m.composite {
		name = fmt.Sprintf("%s_frame_%03d_rgb.png", base, m.frame.Frame)
	}
	path := filepath.Join(dir, name)

	if err := visualization.SaveSnapshot(img, path); err != nil {
		m.log.Error("snapshot failed", "path", path, "error", err)
		m.status = models.StatusUpdate{Message: "Snapshot failed: " + err.Error(), Err: err}
		return
	}
	m.log.Info("snapshot saved", "path", path)
	m.status = models.StatusUpdate{Message: "Saved " + path}
}

// View renders the full TUI.
func (m *model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	panel := stylePanelBorder.
		Width(m.panelWidth()).
		Height(m.panelHeight()).
		Render(m.renderFrame())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		panel,
		m.scrubBar(),
		m.infoLine(),
		m.statusBar(),
		m.help.View(keys),
	)
}

// helper methods

func (m *model) panelWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(m.width-2, 10)
}

func (m *model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// Header, scrub bar, info, status and help lines plus the borders
	return max(m.height-7, 3)
}

func (m *model) header() string {
	if !m.stack.HasStack {
		return styleTitle.Render("cellviewer")
	}
	title := filepath.Base(m.stack.Summary.Path)
	if m.browser != nil && m.browser.Len() > 1 {
		title = fmt.Sprintf("%s [%d/%d]", title, m.browser.Index()+1, m.browser.Len())
	}
	return styleTitle.Render(title) + "  " + styleSummary.Render(m.stack.Summary.String())
}

func (m *model) renderFrame() string {
	img := m.shown()
	if img == nil {
		return styleEmpty.Render("No stack loaded")
	}
	return m.viewer.Render(img)
}

// scrubBar draws one cell per bucket of frames with the marked interval
// highlighted and the current frame as a cursor.
func (m *model) scrubBar() string {
	width := m.panelWidth()
	frames := m.frame.Frames
	if frames == 0 || width <= 0 {
		return styleTrack.Render(strings.Repeat("─", max(width, 0)))
	}

	cells := min(width, frames)
	index := func(frame int) int { return frame * cells / frames }
	cursor := index(m.frame.Frame)

	var sb strings.Builder
	for c := 0; c < cells; c++ {
		switch {
		case c == cursor:
			sb.WriteString(styleCursor.Render("●"))
		case m.inInterval(c, cells, frames):
			sb.WriteString(styleInterval.Render("━"))
		default:
			sb.WriteString(styleTrack.Render("─"))
		}
	}
	return sb.String()
}

func (m *model) inInterval(cell, cells, frames int) bool {
	start, end := m.interval.Start, m.interval.End
	switch {
	case start < 0 && end < 0:
		return false
	case start < 0:
		start = end
	case end < 0:
		end = start
	}
	lo, hi := start*cells/frames, end*cells/frames
	return cell >= lo && cell <= hi
}

func (m *model) infoLine() string {
	if !m.stack.HasStack {
		return ""
	}
	parts := []string{
		fmt.Sprintf("Frame %d/%d", m.frame.Frame+1, m.frame.Frames),
	}
	if n := m.sess.Channels(); n > 1 {
		if m.composite {
			parts = append(parts, "RGB")
		} else {
			parts = append(parts, fmt.Sprintf("Channel %d/%d", m.frame.Channel+1, n))
		}
	}

	switch iv := m.interval; {
	case iv.Complete():
		parts = append(parts, fmt.Sprintf("Interval %d-%d (%d frames)", iv.Start, iv.End, iv.End-iv.Start+1))
	case iv.Start >= 0:
		parts = append(parts, fmt.Sprintf("Interval start %d", iv.Start))
	case iv.End >= 0:
		parts = append(parts, fmt.Sprintf("Interval end %d", iv.End))
	default:
		parts = append(parts, "Interval not set")
	}

	parts = append(parts, string(m.sess.Policy()))

	line := styleLabel.Render(strings.Join(parts, " | "))
	if m.clock.Running() {
		line = stylePlaying.Render(fmt.Sprintf("▶ %v", m.clock.Interval())) + "  " + line
	}
	return line
}

func (m *model) statusBar() string {
	if m.status.Err != nil {
		return styleStatusError.Render(m.status.Message)
	}
	return styleStatusBar.Render(m.status.Message)
}
