// Package tui provides a terminal transport panel for dualseq
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/dualseq/pkg/app"
	"github.com/james-see/dualseq/pkg/sequencer"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(acidYellow)

	playingStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// refreshInterval is how often the play-head display updates
const refreshInterval = 100 * time.Millisecond

// State represents the current TUI state
type State int

const (
	StateTransport State = iota
	StateFilePicker
	StateLoading
)

// Model represents the TUI model
type Model struct {
	app        *app.App
	state      State
	status     sequencer.Status
	filePicker filepicker.Model
	spinner    spinner.Model
	loading    string
	err        error
	width      int
	height     int
}

// loadDoneMsg signals load completion
type loadDoneMsg struct {
	name string
	err  error
}

// tickMsg refreshes the status snapshot
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// New creates a new TUI model around a
func New(a *app.App) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi"}
	fp.CurrentDirectory, _ = filepath.Abs(a.Config.MIDIDir)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		app:        a,
		state:      StateTransport,
		status:     a.Sequencer.Status(),
		filePicker: fp,
		spinner:    s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update handles TUI updates. The sequencer is only touched from here,
// never while a load is in flight.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The file picker needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateTransport
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			name, err := m.sourceName(path)
			if err != nil {
				m.err = err
				m.state = StateTransport
				return m, nil
			}
			m.loading = name
			m.state = StateLoading
			return m, tea.Batch(m.spinner.Tick, m.performLoad(name))
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		if m.state == StateTransport {
			return m.updateTransport(msg)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != StateLoading {
			m.status = m.app.Sequencer.Status()
		}
		return m, tick()

	case loadDoneMsg:
		m.state = StateTransport
		m.err = msg.err
		m.loading = ""
		m.status = m.app.Sequencer.Status()
		return m, nil
	}

	return m, nil
}

func (m Model) updateTransport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	seq := m.app.Sequencer
	switch msg.String() {
	case " ", "p":
		if seq.IsPlaying() {
			seq.Stop()
		} else {
			seq.Play()
		}
	case "r":
		seq.Rewind()
	case "l":
		seq.LoopToggle()
	case "o":
		m.state = StateFilePicker
		m.err = nil
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		seq.Stop()
		return m, tea.Quit
	}
	m.status = seq.Status()
	return m, nil
}

// sourceName maps a picked path to a name the App's loader resolves
func (m Model) sourceName(path string) (string, error) {
	root, err := filepath.Abs(m.app.Config.MIDIDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the MIDI directory %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}

func (m Model) performLoad(name string) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		return loadDoneMsg{name: name, err: a.Load(name)}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateTransport:
		s.WriteString(m.viewTransport())
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("space: play/stop • r: rewind • l: loop • o: open • q: quit"))
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateLoading:
		s.WriteString(m.viewLoading())
	}

	return s.String()
}

func (m Model) viewTransport() string {
	var s strings.Builder
	st := m.status

	s.WriteString(titleStyle.Render(fmt.Sprintf(" %s BACKEND ", strings.ToUpper(string(st.Backend)))))
	s.WriteString("\n\n")

	source := st.Source
	if source == "" {
		source = "(nothing loaded)"
	}
	transport := valueStyle.Render("■ stopped")
	if st.Playing {
		transport = playingStyle.Render("▶ playing")
	}
	loop := "off"
	if st.LoopEnabled {
		loop = "on"
	}

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label))
		s.WriteString(value)
		s.WriteString("\n")
	}
	row("Source", valueStyle.Render(source))
	row("Transport", transport)
	row("Position", valueStyle.Render(fmt.Sprintf("%.2f / %.2f beats", st.Position, st.Length)))
	row("Loop", valueStyle.Render(loop))
	row("Tracks", valueStyle.Render(fmt.Sprintf("%d", st.TrackCount)))

	if len(st.Tracks) > 0 {
		s.WriteString("\n")
		for _, t := range st.Tracks {
			s.WriteString(fmt.Sprintf("  %2d  %6.2f beats  loop %6.2f x %d  %s\n",
				t.Index, t.Length, t.Loop.Duration, t.Loop.Count, t.Destination))
		}
	}

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to transport"))

	return s.String()
}

func (m Model) viewLoading() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" LOADING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Loading %s...\n", m.spinner.View(), m.loading))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ___  _   _  _   _    ___ ___ ___
  |   \| | | |/_\ | |  / __| __/ _ \
  | |) | |_| / _ \| |__\__ \ _| (_) |
  |___/ \___/_/ \_\____|___/___\__\_\
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(a *app.App) error {
	p := tea.NewProgram(New(a), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
