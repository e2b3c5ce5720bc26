package watch

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/homectlx/homectl/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type tickMsg time.Time

type feedClosedMsg struct{}

// --- Commands ---

// receiveNextEvent waits for the next hub event on the subscription.
func receiveNextEvent(feed <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(e)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
