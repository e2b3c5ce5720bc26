package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func renderHeader(page string, state *EngineState, connected bool, ticker Ticker, spinner Spinner, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	gate := theme.Good.Render("IDLE")
	if state.Busy {
		gate = theme.Pending.Render("BUSY")
	}
	if !connected {
		gate = theme.Bad.Render("DETACHED")
	}

	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		ago := now.Sub(spinner.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	tickerStr := theme.Refresh.Render(ticker.Current())
	clock := theme.Dim.Render(now.Format("15:04:05"))
	titleText := fmt.Sprintf(" HOMECTL WATCH %s %s", tickerStr, theme.Dim.Render(page))

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" Gate: %s  Rejected: %d  Refresh: %d armed / %d fired  Upload errors: %d",
		gate,
		state.Rejected,
		state.RefreshArmed,
		state.RefreshFired,
		state.UploadsFailed,
	)

	focus := state.Focus
	if focus == "" {
		focus = "-"
	}
	activityLine := fmt.Sprintf(" Focus: %s  Last event: %s %s",
		focus,
		lastEventStr,
		spinner.Render(theme),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	)

	return theme.Panel.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
