// Package tui is the terminal dashboard for the watch command: a table of
// upcoming events refreshed every second above a log of fired events.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/star/skywatch/internal/event"
	"github.com/star/skywatch/internal/report"
)

const maxFired = 100

// Pending lists the events waiting to fire. *schedule.Queue implements it.
type Pending interface {
	Snapshot() []event.Event
}

type tickMsg time.Time

type firedMsg event.Event

type closedMsg struct{}

type styles struct {
	header   lipgloss.Style
	column   lipgloss.Style
	row      lipgloss.Style
	soon     lipgloss.Style
	logTitle lipgloss.Style
	fired    lipgloss.Style
	footer   lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Background(lipgloss.Color("#1d3557")).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),
		column: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a8dadc")).
			Bold(true),
		row: lipgloss.NewStyle(),
		soon: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f4a261")).
			Bold(true),
		logTitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a8dadc")).
			Bold(true).
			MarginTop(1),
		fired: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8d99ae")),
		footer: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6c757d")),
	}
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	observer string
	pending  Pending
	events   <-chan event.Event
	loc      *time.Location
	clock    func() time.Time

	now      time.Time
	upcoming []event.Event
	fired    []event.Event
	width    int
	height   int
	styles   styles
}

// New creates the dashboard. events delivers fired events, typically a
// notify.Hub subscription; it may be nil.
func New(observer string, pending Pending, events <-chan event.Event, loc *time.Location) Model {
	if loc == nil {
		loc = time.Local
	}
	m := Model{
		observer: observer,
		pending:  pending,
		events:   events,
		loc:      loc,
		clock:    time.Now,
		width:    80,
		height:   24,
		styles:   newStyles(),
	}
	m.refresh(m.clock())
	return m
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForEvent(events <-chan event.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return firedMsg(e)
	}
}

func (m *Model) refresh(now time.Time) {
	m.now = now
	if m.pending != nil {
		m.upcoming = m.pending.Snapshot()
	}
}

// Init starts the clock and the fired-event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitForEvent(m.events))
}

// Update handles keys, resizes, clock ticks and fired events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		m.refresh(time.Time(msg))
		return m, tick()
	case firedMsg:
		m.fired = append(m.fired, event.Event(msg))
		if len(m.fired) > maxFired {
			m.fired = m.fired[len(m.fired)-maxFired:]
		}
		m.refresh(m.clock())
		return m, waitForEvent(m.events)
	case closedMsg:
		m.events = nil
	}
	return m, nil
}

// View renders the header, the upcoming table and the fired log.
func (m Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("skywatch · %s · %s", m.observer, m.now.In(m.loc).Format("2006-01-02 15:04:05 MST"))
	b.WriteString(m.styles.header.Width(m.width).Render(title))
	b.WriteString("\n\n")

	// header, blank, column row, log title, footer and a few log lines
	logLines := 5
	rows := m.height - 8 - logLines
	if rows < 3 {
		rows = 3
	}

	b.WriteString(m.styles.column.Render(fmt.Sprintf("%-23s  %9s  %-12s  %-28s  %s", "DATE", "IN", "KIND", "BODY", "AZ/ALT")))
	b.WriteString("\n")
	if len(m.upcoming) == 0 {
		b.WriteString(m.styles.fired.Render("no pending events"))
		b.WriteString("\n")
	}
	for i, e := range m.upcoming {
		if i == rows {
			b.WriteString(m.styles.fired.Render(fmt.Sprintf("… %d more", len(m.upcoming)-rows)))
			b.WriteString("\n")
			break
		}
		until := e.Date.Sub(m.now)
		line := fmt.Sprintf("%-23s  %9s  %-12s  %-28s  %s",
			e.Date.In(m.loc).Format("2006-01-02 15:04:05 MST"),
			Countdown(until),
			e.Kind,
			truncate(e.Body, 28),
			report.AzAlt(e),
		)
		style := m.styles.row
		if until < 5*time.Minute {
			style = m.styles.soon
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.logTitle.Render("Fired"))
	b.WriteString("\n")
	start := len(m.fired) - logLines
	if start < 0 {
		start = 0
	}
	for i := len(m.fired) - 1; i >= start; i-- {
		e := m.fired[i]
		b.WriteString(m.styles.fired.Render(fmt.Sprintf("EVENT: %s %s %s %s",
			e.Date.In(m.loc).Format("2006-01-02 15:04:05 MST"), e.Body, e.Kind, report.AzAlt(e))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.footer.Render(fmt.Sprintf("%d pending · q to quit", len(m.upcoming))))
	return b.String()
}

// Countdown formats the time until an event compactly.
func Countdown(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h >= 24:
		return fmt.Sprintf("%dd%02dh", h/24, h%24)
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, mnt)
	case mnt > 0:
		return fmt.Sprintf("%dm%02ds", mnt, s)
	}
	return fmt.Sprintf("%ds", s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
