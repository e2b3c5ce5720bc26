package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/homectlx/homectl/internal/events"
)

func renderEventLines(eventLog []events.Event, theme Theme) string {
	if len(eventLog) == 0 {
		return theme.Dim.Render("Waiting for events...")
	}
	lines := make([]string, 0, len(eventLog))
	for _, e := range eventLog {
		lines = append(lines, formatEvent(e, theme))
	}
	return strings.Join(lines, "\n")
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".succeeded"), e.Type == events.FragmentApplied:
		typeStyle = theme.Good
	case strings.HasSuffix(e.Type, ".failed"), e.Type == events.GateRejected:
		typeStyle = theme.Bad
	case strings.HasSuffix(e.Type, ".started"):
		typeStyle = theme.Pending
	case strings.HasPrefix(e.Type, "refresh."):
		typeStyle = theme.Refresh
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if id, ok := data["invocation_id"].(string); ok {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", id))
	}
	for _, key := range []string{"command", "key", "id", "reason", "error"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}

	if len(parts) == 0 {
		return compactData(data)
	}
	return strings.Join(parts, " ")
}

func compactData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	raw := strings.Join(parts, " ")
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return raw
}
