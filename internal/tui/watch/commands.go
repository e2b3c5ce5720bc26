package watch

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

func newCommandTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Command", Width: 24},
			{Title: "ID", Width: 8},
			{Title: "Fragments", Width: 10},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func commandRows(cmds []CommandState) []table.Row {
	rows := make([]table.Row, 0, len(cmds))
	for _, c := range cmds {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		frags := "-"
		if c.Status == StatusOK {
			frags = fmt.Sprintf("%d/%d", c.Applied, c.Skipped)
		}
		rows = append(rows, table.Row{
			statusIcon(c.Status),
			c.Command,
			id,
			frags,
			formatDuration(c.Duration),
		})
	}
	return rows
}

func statusIcon(status string) string {
	switch status {
	case StatusOK:
		return "✓"
	case StatusFailed:
		return "✗"
	case StatusRunning:
		return "▶"
	}
	return "·"
}

func renderCommands(t table.Model, cmds []CommandState, theme Theme, width int) string {
	body := t.View()
	if len(cmds) == 0 {
		body = theme.Dim.Render("  No commands yet")
	} else if c := cmds[0]; c.Status == StatusFailed && c.Error != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body,
			theme.Bad.Render(fmt.Sprintf(" last error: %s", c.Error)))
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("COMMANDS"),
		body,
	)
	return theme.Panel.Width(width - 4).Render(content)
}
