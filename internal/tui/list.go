package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/njaaron/articlesearch/internal/cache"
)

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

func headlineOf(a cache.Article) string {
	if a.Headline == "" {
		return "(untitled)"
	}
	return a.Headline
}

func renderListItem(a cache.Article, selected bool, width int) string {
	if width < 10 {
		width = 30
	}

	var title string
	if selected {
		title = itemSelectedStyle.Render("> " + truncateStr(headlineOf(a), width-4))
	} else {
		title = itemTitleStyle.Render("  " + truncateStr(headlineOf(a), width-4))
	}

	byline := a.Byline
	if byline == "" {
		byline = "—"
	}
	meta := "  " + itemBylineStyle.Render(truncateStr(byline, width-4))

	return title + "\n" + meta
}

func truncateStr(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// visibleRange returns the [start, end) window of items that keeps cursor on
// screen when each item takes itemHeight lines.
func visibleRange(total, cursor, height, itemHeight int) (int, int) {
	visible := height / itemHeight
	if visible < 1 {
		visible = 1
	}

	start := 0
	if cursor >= visible {
		start = cursor - visible + 1
	}
	end := start + visible
	if end > total {
		end = total
		start = end - visible
		if start < 0 {
			start = 0
		}
	}
	return start, end
}

func renderList(articles []cache.Article, cursor int, height int, width int) string {
	if len(articles) == 0 {
		return lipglossCenter("No articles yet. Press r to refresh.", width, height)
	}

	// Each item is 2 lines + 1 blank line = 3 lines
	start, end := visibleRange(len(articles), cursor, height, 3)

	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(renderListItem(articles[i], i == cursor, width))
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func lipglossCenter(s string, width, height int) string {
	pad := (width - len([]rune(s))) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat("\n", height/3) + strings.Repeat(" ", pad) + s
}
