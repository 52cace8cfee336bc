package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

var (
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236"))

	statusStateStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("226")).
				Bold(true).
				Padding(0, 1)

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("160")).
				Padding(0, 1)
)

// statusBar aggregates playback progress for the footer line.
type statusBar struct {
	backend    string
	state      string
	chunk      int
	chunks     int
	word       int
	words      int
	errMessage string
}

func (s statusBar) render(width int) string {
	var label string
	if s.errMessage != "" {
		label = statusErrorStyle.Render("error")
	} else {
		label = statusStateStyle.Render(s.state)
	}

	var body string
	switch {
	case s.errMessage != "":
		body = " " + s.errMessage
	case s.chunks > 0:
		body = fmt.Sprintf(" %s · chunk %d/%d · word %d/%d",
			s.backend, s.chunk+1, s.chunks, s.word+1, s.words)
	default:
		body = " " + s.backend
	}

	bodyWidth := width - lipgloss.Width(label)
	if bodyWidth < 0 {
		bodyWidth = 0
	}
	body = truncate.StringWithTail(body, uint(bodyWidth), "…")
	if gap := bodyWidth - lipgloss.Width(body); gap > 0 {
		body += spaces(gap)
	}

	return label + statusBarStyle.Render(body)
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
