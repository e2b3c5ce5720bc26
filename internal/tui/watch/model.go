package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/homectlx/homectl/internal/events"
)

const maxEventLog = 200

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	page string

	width  int
	height int

	feed      <-chan events.Event
	cancel    func()
	lastID    int64
	connected bool

	state    *EngineState
	eventLog []events.Event // newest first

	ticker  Ticker
	spinner Spinner
	theme   Theme
	now     func() time.Time

	commands table.Model
	stream   viewport.Model
}

// New subscribes to hub and replays its buffered events. Call Close once
// the program exits.
func New(page string, hub *events.Hub) *Model {
	feed, cancel := hub.Subscribe()
	m := &Model{
		page:      page,
		feed:      feed,
		cancel:    cancel,
		connected: true,
		state:     newEngineState(),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		now:       time.Now,
		commands:  newCommandTable(),
		stream:    viewport.New(0, 0),
	}
	for _, e := range hub.SnapshotSince(0) {
		m.record(e)
	}
	return m
}

// Close drops the hub subscription.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// State exposes the aggregated engine state.
func (m Model) State() *EngineState {
	return m.state
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		receiveNextEvent(m.feed),
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k", "down", "j":
			m.commands, cmd = m.commands.Update(msg)
			return m, cmd
		}
		m.stream, cmd = m.stream.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.commands.SetWidth(m.width - 8)
		m.stream.Width = m.width - 8
		m.stream.Height = max(m.height-24, 5)
		m.refreshStream()

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(time.Time(msg))
		return m, tick()

	case eventMsg:
		m.record(events.Event(msg))
		return m, receiveNextEvent(m.feed)

	case feedClosedMsg:
		m.connected = false
	}

	return m, nil
}

// record folds e into the view unless it was already replayed.
func (m *Model) record(e events.Event) {
	if e.ID <= m.lastID {
		return
	}
	m.lastID = e.ID

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.spinner.OnEvent(e.At)
	m.state.Apply(e)
	m.commands.SetRows(commandRows(m.state.Commands()))
	m.refreshStream()
}

func (m *Model) refreshStream() {
	m.stream.SetContent(renderEventLines(m.eventLog, m.theme))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing homectl watch..."
	}

	header := renderHeader(m.page, m.state, m.connected, m.ticker, m.spinner, m.theme, m.width, m.now())
	commands := renderCommands(m.commands, m.state.Commands(), m.theme, m.width)
	stream := m.theme.Panel.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("EVENT STREAM"),
		m.stream.View(),
	))

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Commands • [pgup/pgdn] Events")

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, commands, stream, help),
	)
}
