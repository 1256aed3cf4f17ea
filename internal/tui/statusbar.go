package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type statusInfo struct {
	count        int
	cacheEnabled bool
	transient    bool
	online       bool
	refreshing   bool
	lastSync     string
}

func renderStatusBar(s statusInfo, width int) string {
	left := fmt.Sprintf(" %d articles", s.count)
	if s.transient {
		left += " · not cached"
	}
	if !s.cacheEnabled {
		left += " · cache off"
	}
	if !s.online {
		left += " · offline"
	}
	if s.lastSync != "" {
		left += " · synced " + s.lastSync
	}
	if s.refreshing {
		left += " (refreshing...)"
	}

	right := " r refresh  c cache  o image  ? help  q quit "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + fmt.Sprintf("%*s", gap, "") + right

	return statusBarStyle.Width(width).Render(bar)
}
