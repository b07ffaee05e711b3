// Package tui implements the terminal monitor using BubbleTea with a live
// sparkline coloured against the alarm threshold.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/status"
)

const (
	refreshInterval = 500 * time.Millisecond
	thresholdStep   = 0.5
)

// Source supplies dashboard snapshots.
type Source interface {
	Snapshot() status.Snapshot
}

// Controls are the dashboard actions bound to keys.
type Controls interface {
	SetThreshold(v float64) error
	ToggleRecording() (bool, error)
	Clear() error
	Connect(address string) error
	Disconnect() error
}

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type snapshotMsg status.Snapshot

type actionMsg struct {
	what string
	err  error
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the terminal monitor.
type Model struct {
	source   Source
	controls Controls
	snap     status.Snapshot
	haveSnap bool
	lastErr  error
	lastMsg  string
	width    int
	height   int
}

// New creates the initial model.
func New(source Source, controls Controls) Model {
	return Model{source: source, controls: controls}
}

// Run starts the monitor on the terminal and blocks until the user quits.
func Run(source Source, controls Controls) error {
	_, err := tea.NewProgram(New(source, controls), tea.WithAltScreen()).Run()
	return err
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) poll() tea.Msg {
	return snapshotMsg(m.source.Snapshot())
}

func (m Model) action(what string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{what: what, err: fn()}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll, tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.poll, tickCmd())

	case snapshotMsg:
		m.snap = status.Snapshot(msg)
		m.haveSnap = true

	case actionMsg:
		m.lastErr = msg.err
		m.lastMsg = msg.what
		return m, m.poll
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.action("toggle recording", func() error {
			_, err := m.controls.ToggleRecording()
			return err
		})
	case "c":
		return m, m.action("clear", m.controls.Clear)
	case "+", "=":
		v := m.snap.Threshold + thresholdStep
		return m, m.action(fmt.Sprintf("threshold %.2f", v), func() error {
			return m.controls.SetThreshold(v)
		})
	case "-":
		v := m.snap.Threshold - thresholdStep
		return m, m.action(fmt.Sprintf("threshold %.2f", v), func() error {
			return m.controls.SetThreshold(v)
		})
	case "d":
		return m, m.action("disconnect", m.controls.Disconnect)
	case "n":
		return m, m.action("connect", func() error {
			return m.controls.Connect("")
		})
	}
	return m, nil
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg = lipgloss.Color("17")
	colorTitleFg = lipgloss.Color("51")
	colorBorder  = lipgloss.Color("62")
	colorLabel   = lipgloss.Color("252")
	colorDim     = lipgloss.Color("240")
	colorOk      = lipgloss.Color("78")
	colorWarn    = lipgloss.Color("220")
	colorHigh    = lipgloss.Color("208")
	colorCrit    = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if !m.haveSnap {
		return "  Initializing..."
	}

	width := m.width - 2
	if width < 40 {
		width = 40
	}

	sections := []string{
		m.renderTitleBar(width),
		m.renderReadout(),
		m.renderChart(width),
		m.renderStatus(),
	}
	if line := m.renderNotice(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, lipgloss.NewStyle().Foreground(colorDim).
		Render("r record  c clear  +/- threshold  n connect  d disconnect  q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().Bold(true).Foreground(colorTitleFg).Render("THERMO DASHBOARD")
	right := lipgloss.NewStyle().Foreground(colorDim).
		Render(fmt.Sprintf("%s │ up %s", m.snap.Address, m.snap.Uptime().Truncate(time.Second)))

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderReadout() string {
	if m.snap.Current == nil {
		return lipgloss.NewStyle().Foreground(colorDim).Bold(true).Render("  --.--°C")
	}
	v := *m.snap.Current
	return lipgloss.NewStyle().
		Foreground(TempColor(v, m.snap.Threshold)).
		Bold(true).
		Render(fmt.Sprintf("  %.2f°C", v))
}

func (m Model) renderChart(width int) string {
	inner := width - 4
	spark := RenderSparkline(m.snap.Window, inner)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Render(spark)
}

func (m Model) renderStatus() string {
	label := lipgloss.NewStyle().Foreground(colorLabel)
	dim := lipgloss.NewStyle().Foreground(colorDim)

	rec := dim.Render("idle")
	if m.snap.Recording {
		rec = lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render("REC")
	}

	parts := []string{
		label.Render("device ") + connBadge(m.snap.Connection),
		label.Render("alarm ") + alertBadge(m.snap.Alert),
		label.Render("recording ") + rec,
		label.Render("threshold ") + fmt.Sprintf("%.2f°C", m.snap.Threshold),
		label.Render("samples ") + fmt.Sprintf("%d", m.snap.ExportLen),
	}
	return strings.Join(parts, dim.Render(" │ "))
}

func (m Model) renderNotice() string {
	if m.lastErr != nil {
		return lipgloss.NewStyle().Foreground(colorCrit).Bold(true).
			Render(fmt.Sprintf(" ERROR: %s: %v", m.lastMsg, m.lastErr))
	}
	if n := len(m.snap.Notifications); n > 0 {
		last := m.snap.Notifications[n-1]
		return lipgloss.NewStyle().Foreground(colorDim).
			Render(fmt.Sprintf(" %s %s", last.Time.Format("15:04:05"), last.Message))
	}
	return ""
}

func connBadge(s logic.ConnState) string {
	c := colorCrit
	switch s {
	case logic.StateConnected:
		c = colorOk
	case logic.StateConnecting:
		c = colorWarn
	}
	return lipgloss.NewStyle().Foreground(c).Render(string(s))
}

func alertBadge(s logic.AlertState) string {
	if s == logic.AlertAlarming {
		return lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Blink(true).Render(string(s))
	}
	return lipgloss.NewStyle().Foreground(colorDim).Render(string(s))
}
