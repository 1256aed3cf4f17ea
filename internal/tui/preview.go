package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/njaaron/articlesearch/internal/cache"
)

func renderPreview(article *cache.Article, width, height, scroll int) string {
	if article == nil {
		return lipglossCenter("Select an article", width, height)
	}

	contentWidth := width - 2
	if contentWidth < 10 {
		contentWidth = 10
	}

	parts := []string{previewTitleStyle.Width(contentWidth).Render(headlineOf(*article))}
	if article.Byline != "" {
		parts = append(parts, previewBylineStyle.Render(article.Byline))
	}

	summary := article.Summary
	if summary == "" {
		summary = "(No abstract available)"
	}
	parts = append(parts, "", previewBodyStyle.Width(contentWidth).Render(wrapText(summary, contentWidth)))

	if article.ImageURL != "" {
		parts = append(parts, "", previewLinkStyle.Width(contentWidth).Render("Image: "+article.ImageURL))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)

	// Apply scroll offset
	lines := strings.Split(content, "\n")
	if scroll > 0 && scroll < len(lines) {
		lines = lines[scroll:]
	}

	// Pad to fill height
	if len(lines) < height {
		lines = append(lines, make([]string, height-len(lines))...)
	} else if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) > width {
			lines = append(lines, line)
			line = w
		} else {
			line += " " + w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}
