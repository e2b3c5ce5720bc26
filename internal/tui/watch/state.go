package watch

import (
	"time"

	"github.com/homectlx/homectl/internal/events"
)

// Command statuses shown in the table.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

const maxCommands = 20

// CommandState is one invocation as seen through the event stream.
type CommandState struct {
	ID       string
	Command  string
	Status   string
	Applied  int
	Skipped  int
	Error    string
	Started  time.Time
	Duration time.Duration
}

// EngineState aggregates everything the header and table render.
type EngineState struct {
	Busy          bool
	Rejected      int
	RefreshArmed  int
	RefreshFired  int
	UploadsFailed int
	Focus         string

	commands map[string]*CommandState
	order    []string // newest first
}

func newEngineState() *EngineState {
	return &EngineState{commands: make(map[string]*CommandState)}
}

// Commands returns the tracked invocations, newest first.
func (s *EngineState) Commands() []CommandState {
	out := make([]CommandState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.commands[id])
	}
	return out
}

// Apply folds one event into the state.
func (s *EngineState) Apply(e events.Event) {
	var data struct {
		InvocationID string   `json:"invocation_id"`
		Command      string   `json:"command"`
		Applied      []string `json:"applied"`
		Skipped      []string `json:"skipped"`
		DurationMS   int64    `json:"duration_ms"`
		Error        string   `json:"error"`
		Busy         bool     `json:"busy"`
		Timers       int      `json:"timers"`
		ID           string   `json:"id"`
	}
	if err := e.Decode(&data); err != nil {
		return
	}

	switch e.Type {
	case events.GateChanged:
		s.Busy = data.Busy
	case events.GateRejected:
		s.Rejected++
	case events.RefreshArmed:
		s.RefreshArmed += data.Timers
	case events.RefreshFired:
		s.RefreshFired++
	case events.UploadFailed:
		s.UploadsFailed++
	case events.FocusChanged:
		s.Focus = data.ID
	case events.CommandStarted:
		c := s.command(data.InvocationID)
		c.Command = data.Command
		c.Status = StatusRunning
		c.Started = e.At
	case events.CommandSucceeded:
		c := s.command(data.InvocationID)
		c.Command = data.Command
		c.Status = StatusOK
		c.Applied = len(data.Applied)
		c.Skipped = len(data.Skipped)
		c.Duration = time.Duration(data.DurationMS) * time.Millisecond
	case events.CommandFailed:
		c := s.command(data.InvocationID)
		c.Command = data.Command
		c.Status = StatusFailed
		c.Error = data.Error
		if !c.Started.IsZero() {
			c.Duration = e.At.Sub(c.Started)
		}
	}
}

func (s *EngineState) command(id string) *CommandState {
	if c, ok := s.commands[id]; ok {
		return c
	}
	c := &CommandState{ID: id}
	s.commands[id] = c
	s.order = append([]string{id}, s.order...)
	if len(s.order) > maxCommands {
		for _, old := range s.order[maxCommands:] {
			delete(s.commands, old)
		}
		s.order = s.order[:maxCommands]
	}
	return c
}
