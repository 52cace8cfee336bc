package ui

import (
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/francktshibala/bookbridge-narrator/narrate"
)

// Styling is disabled when stdout is not a terminal; force a color profile
// so styled and unstyled output stay distinguishable under test.
func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.ANSI256)
	os.Exit(m.Run())
}

func TestRenderEmpty(t *testing.T) {
	h := NewHighlighter("226")
	if got := h.Render(nil, 0, 80); got != "" {
		t.Errorf("Render(nil) = %q, want empty", got)
	}
}

func TestRenderContainsAllWords(t *testing.T) {
	h := NewHighlighter("226")
	tokens := narrate.Tokenize("the quick brown fox")

	out := h.Render(tokens, 1, 80)
	for _, w := range []string{"the", "quick", "brown", "fox"} {
		if !strings.Contains(out, w) {
			t.Errorf("rendered output missing %q: %q", w, out)
		}
	}
}

func TestRenderHighlightMoves(t *testing.T) {
	h := NewHighlighter("226")
	tokens := narrate.Tokenize("alpha beta gamma")

	a := h.Render(tokens, 0, 80)
	b := h.Render(tokens, 1, 80)
	if a == b {
		t.Error("moving the highlight did not change the output")
	}
}

func TestRenderNoHighlight(t *testing.T) {
	h := NewHighlighter("")
	tokens := narrate.Tokenize("one two")
	withHighlight := h.Render(tokens, 0, 80)
	without := h.Render(tokens, -1, 80)
	if withHighlight == without {
		t.Error("highlight index -1 should render differently from index 0")
	}
}

func TestRenderWraps(t *testing.T) {
	h := NewHighlighter("226")
	tokens := narrate.Tokenize("aaaa bbbb cccc dddd eeee ffff")

	out := h.Render(tokens, -1, 10)
	if !strings.Contains(out, "\n") {
		t.Errorf("narrow render did not wrap: %q", out)
	}
}

func TestStatusBarRender(t *testing.T) {
	s := statusBar{
		backend: "local",
		state:   "playing",
		chunk:   1,
		chunks:  4,
		word:    2,
		words:   10,
	}
	out := s.render(60)
	for _, want := range []string{"playing", "local", "2/4", "3/10"} {
		if !strings.Contains(out, want) {
			t.Errorf("status bar missing %q: %q", want, out)
		}
	}
}

func TestStatusBarError(t *testing.T) {
	s := statusBar{backend: "remote", errMessage: "quota exceeded"}
	out := s.render(60)
	if !strings.Contains(out, "error") || !strings.Contains(out, "quota exceeded") {
		t.Errorf("error status bar = %q", out)
	}
}
