package watch

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/homectlx/homectl/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishRun(hub *events.Hub) {
	hub.Publish(events.GateChanged, map[string]any{"busy": true})
	hub.Publish(events.CommandStarted, map[string]any{
		"invocation_id": "0f1e2d3c-aaaa-bbbb-cccc-000000000001",
		"command":       "lights/toggle",
	})
	hub.Publish(events.FragmentApplied, map[string]any{
		"invocation_id": "0f1e2d3c-aaaa-bbbb-cccc-000000000001",
		"key":           "status",
		"changed":       true,
	})
	hub.Publish(events.CommandSucceeded, map[string]any{
		"invocation_id": "0f1e2d3c-aaaa-bbbb-cccc-000000000001",
		"command":       "lights/toggle",
		"applied":       []string{"status"},
		"skipped":       []string{"gone"},
		"duration_ms":   42,
	})
	hub.Publish(events.GateChanged, map[string]any{"busy": false})
	hub.Publish(events.RefreshArmed, map[string]any{"key": "status", "timers": 2})
	hub.Publish(events.RefreshFired, map[string]any{"key": "status"})
}

func TestNewReplaysBufferedEvents(t *testing.T) {
	hub := events.NewHub(32)
	publishRun(hub)

	m := New("http://panel/lights/ctl", hub)
	defer m.Close()

	st := m.State()
	assert.False(t, st.Busy)
	assert.Equal(t, 2, st.RefreshArmed)
	assert.Equal(t, 1, st.RefreshFired)

	cmds := st.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "lights/toggle", cmds[0].Command)
	assert.Equal(t, StatusOK, cmds[0].Status)
	assert.Equal(t, 1, cmds[0].Applied)
	assert.Equal(t, 1, cmds[0].Skipped)
	assert.Equal(t, 42*time.Millisecond, cmds[0].Duration)
}

func TestUpdateIgnoresReplayedEvents(t *testing.T) {
	hub := events.NewHub(32)
	publishRun(hub)
	m := New("page", hub)
	defer m.Close()

	// The subscription also delivered every buffered event.
	var model tea.Model = *m
	for _, e := range hub.SnapshotSince(0) {
		model, _ = model.Update(eventMsg(e))
	}
	assert.Len(t, model.(Model).eventLog, 7)
	assert.Len(t, model.(Model).State().Commands(), 1)
}

func TestUpdateTracksFailureAndRejection(t *testing.T) {
	hub := events.NewHub(32)
	m := New("page", hub)
	defer m.Close()

	hub.Publish(events.CommandStarted, map[string]any{"invocation_id": "abc", "command": "heat/set"})
	hub.Publish(events.GateRejected, map[string]any{"command": "heat/set"})
	hub.Publish(events.CommandFailed, map[string]any{"invocation_id": "abc", "command": "heat/set", "error": "boom"})
	hub.Publish(events.FocusChanged, map[string]any{"id": "panel"})

	var model tea.Model = *m
	for _, e := range hub.SnapshotSince(0) {
		model, _ = model.Update(eventMsg(e))
	}

	st := model.(Model).State()
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, "panel", st.Focus)
	cmds := st.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, StatusFailed, cmds[0].Status)
	assert.Equal(t, "boom", cmds[0].Error)
}

func TestCommandHistoryIsBounded(t *testing.T) {
	st := newEngineState()
	hub := events.NewHub(64)
	for i := range maxCommands + 5 {
		hub.Publish(events.CommandStarted, map[string]any{
			"invocation_id": strings.Repeat("x", i+1),
			"command":       "lights/toggle",
		})
	}
	for _, e := range hub.SnapshotSince(0) {
		st.Apply(e)
	}
	cmds := st.Commands()
	require.Len(t, cmds, maxCommands)
	assert.Equal(t, strings.Repeat("x", maxCommands+5), cmds[0].ID)
	assert.Len(t, st.commands, maxCommands)
}

func TestFeedClosedDetaches(t *testing.T) {
	hub := events.NewHub(8)
	m := New("page", hub)
	m.Close()

	msg := receiveNextEvent(m.feed)()
	require.IsType(t, feedClosedMsg{}, msg)

	model, _ := m.Update(msg)
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Contains(t, model.View(), "DETACHED")
}

func TestViewRendersState(t *testing.T) {
	hub := events.NewHub(32)
	publishRun(hub)
	m := New("http://panel/lights/ctl", hub)
	defer m.Close()
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var model tea.Model = *m
	assert.Equal(t, "Initializing homectl watch...", model.View())

	model, _ = model.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	view := model.View()
	assert.Contains(t, view, "HOMECTL WATCH")
	assert.Contains(t, view, "IDLE")
	assert.Contains(t, view, "lights/toggle")
	assert.Contains(t, view, "0f1e2d3c")
	assert.Contains(t, view, "1/1")
	assert.Contains(t, view, "refresh.fired")
}

func TestQuitKey(t *testing.T) {
	m := New("page", events.NewHub(4))
	defer m.Close()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSpinnerDecay(t *testing.T) {
	var s Spinner
	at := time.Unix(100, 0)
	s.OnEvent(at)
	s.Decay(at.Add(3 * time.Second))
	assert.Equal(t, 4, s.dots)
	s.Decay(at.Add(11 * time.Second))
	assert.Equal(t, 0, s.dots)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "42ms", formatDuration(42*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
}
