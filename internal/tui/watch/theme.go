// Package watch is the terminal view of a running dashboard engine: gate
// state, recent commands and the raw event stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Palette entries, by role.
var (
	colorAccent  = lipgloss.Color("#874BFD")
	colorGood    = lipgloss.Color("#00FF00")
	colorPending = lipgloss.Color("#FFFF00")
	colorBad     = lipgloss.Color("#FF0000")
	colorMuted   = lipgloss.Color("#888888")
	colorFaint   = lipgloss.Color("#444444")
	colorRefresh = lipgloss.Color("#E5C07B")
	colorText    = lipgloss.Color("#FAFAFA")
)

// Theme holds every style the watch view renders with. Outcome styles are
// shared by the gate indicator, the command table and the event stream.
type Theme struct {
	Good    lipgloss.Style // idle gate, succeeded command, applied fragment
	Pending lipgloss.Style // busy gate, started command
	Bad     lipgloss.Style // failures, rejections, detached feed
	Refresh lipgloss.Style // auto-refresh activity

	Panel lipgloss.Style
	Title lipgloss.Style
	Dim   lipgloss.Style

	DotOn  lipgloss.Style
	DotOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Theme{
		Good:    fg(colorGood),
		Pending: fg(colorPending),
		Bad:     fg(colorBad),
		Refresh: fg(colorRefresh),

		Panel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent),
		Title: lipgloss.NewStyle().Bold(true).Foreground(colorText).Padding(0, 1),
		Dim:   fg(colorMuted),

		DotOn:  fg(colorGood),
		DotOff: fg(colorFaint),
	}
}
