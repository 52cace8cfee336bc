package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/francktshibala/bookbridge-narrator/narrate"
)

// Highlighter renders a token sequence with one word visually marked.
type Highlighter struct {
	highlight lipgloss.Style
	spoken    lipgloss.Style
	pending   lipgloss.Style
}

// NewHighlighter creates a highlighter using the given ANSI color for the
// highlighted word.
func NewHighlighter(color string) *Highlighter {
	if color == "" {
		color = "226"
	}
	return &Highlighter{
		highlight: lipgloss.NewStyle().
			Background(lipgloss.Color(color)).
			Foreground(lipgloss.Color("0")).
			Bold(true),
		spoken:  lipgloss.NewStyle().Faint(true),
		pending: lipgloss.NewStyle(),
	}
}

// Render lays out the tokens wrapped to width, with the token at
// highlightIndex marked, already spoken words dimmed and upcoming words
// plain. A negative highlightIndex renders everything as upcoming.
func (h *Highlighter) Render(tokens []narrate.Token, highlightIndex, width int) string {
	if len(tokens) == 0 {
		return ""
	}

	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		switch {
		case i == highlightIndex:
			parts[i] = h.highlight.Render(tok.Text)
		case highlightIndex >= 0 && i < highlightIndex:
			parts[i] = h.spoken.Render(tok.Text)
		default:
			parts[i] = h.pending.Render(tok.Text)
		}
	}

	text := strings.Join(parts, " ")
	if width > 0 {
		text = wordwrap.String(text, width)
	}
	return text
}
