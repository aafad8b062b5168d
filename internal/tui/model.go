// Package tui renders the live bars in a terminal with Bubbletea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voxbars/internal/transcript"
	"github.com/MrWong99/voxbars/pkg/viz"
)

const (
	defaultFrameInterval = time.Second / 30
	defaultBarHeight     = 8
	transcriptLines      = 3
	minWidth             = 20
)

// StateSource supplies the current bar state.
type StateSource interface {
	State() *viz.State
}

// Status is the header line of the view.
type Status struct {
	Participant string
	Mode        string
	Err         string
}

// Config holds the dependencies of the TUI.
type Config struct {
	State StateSource

	// Status describes what is being visualised. Optional.
	Status func() Status

	// Transcript, when set, shows the most recent lines under the bars.
	Transcript *transcript.Store

	// FrameInterval returns the redraw cadence. Optional.
	FrameInterval func() time.Duration

	// ToggleMode switches between volume and spectrum. Bound to "m" when set.
	ToggleMode func() error
}

type tickMsg time.Time

type toggledMsg struct{ err error }

// Model is the Bubbletea model for the bars view.
type Model struct {
	cfg      Config
	snap     viz.Snapshot
	minAmp   float32
	status   Status
	lines    []transcript.Segment
	err      error
	width    int
	height   int
	quitting bool
}

// NewModel creates a Model reading from cfg.
func NewModel(cfg Config) Model {
	return Model{cfg: cfg, width: 80, height: 24}
}

// Init starts the tick timer and requests the terminal size.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), tea.WindowSize())
}

func (m Model) tickCmd() tea.Cmd {
	d := defaultFrameInterval
	if m.cfg.FrameInterval != nil {
		if fd := m.cfg.FrameInterval(); fd > 0 {
			d = fd
		}
	}
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses, ticks and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "m":
			if m.cfg.ToggleMode != nil {
				toggle := m.cfg.ToggleMode
				return m, func() tea.Msg { return toggledMsg{err: toggle()} }
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case toggledMsg:
		m.err = msg.err

	case tickMsg:
		m.refresh()
		return m, m.tickCmd()
	}

	return m, nil
}

// refresh pulls the latest snapshot, status and transcript tail.
func (m *Model) refresh() {
	if m.cfg.State != nil {
		if st := m.cfg.State.State(); st != nil {
			m.snap = st.Snapshot()
			m.minAmp = st.MinAmplitude()
		}
	}
	if m.cfg.Status != nil {
		m.status = m.cfg.Status()
	}
	if m.cfg.Transcript != nil {
		segs := m.cfg.Transcript.Ordered()
		m.lines = segs[max(len(segs)-transcriptLines, 0):]
	}
}

// View renders the frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	inner := max(m.width-4, minWidth)
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("voxbars"))
	sb.WriteString("  ")
	sb.WriteString(textStyle.Render(m.headline()))
	sb.WriteString("\n\n")

	if len(m.snap.Bars) == 0 {
		sb.WriteString(dimStyle.Render("waiting for audio…"))
		sb.WriteString("\n")
	} else {
		height := min(defaultBarHeight, max(m.height-10, 1))
		rows := renderBars(m.snap.Bars, m.minAmp, height, fitBarWidth(len(m.snap.Bars), inner))
		sb.WriteString(strings.Join(rows, "\n"))
		sb.WriteString("\n")
	}

	if m.status.Err != "" {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render("frozen: " + m.status.Err))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}

	if len(m.lines) > 0 {
		sb.WriteString("\n")
		for _, seg := range m.lines {
			line := truncate(fmt.Sprintf("%s: %s", seg.Speaker, seg.Text), inner)
			if seg.Final {
				sb.WriteString(textStyle.Render(line))
			} else {
				sb.WriteString(dimStyle.Render(line))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(m.help()))

	return frameStyle.Width(inner + 2).Render(sb.String())
}

func (m Model) headline() string {
	who := m.status.Participant
	if who == "" {
		who = "nobody"
	}
	if m.status.Mode == "" {
		return "following " + who
	}
	return fmt.Sprintf("following %s · %s", who, m.status.Mode)
}

func (m Model) help() string {
	if m.cfg.ToggleMode != nil {
		return "q quit · m toggle mode"
	}
	return "q quit"
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// Run shows the TUI until the user quits or ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
