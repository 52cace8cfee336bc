// Package ui implements the terminal reader that displays narrated text
// with the spoken word highlighted.
package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/francktshibala/bookbridge-narrator/narrate"
	"github.com/francktshibala/bookbridge-narrator/narrate/chunk"
)

const statusBarHeight = 1

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	chunkGapStyle = lipgloss.NewStyle().Faint(true)
)

// ReaderConfig configures the reader model.
type ReaderConfig struct {
	Title          string
	BackendName    string
	HighlightColor string
	ChunkLimit     int // Must match the controller's chunk limit
}

// Reader is the Bubble Tea model for narrated reading. Playback progress
// arrives as narrate messages sent into the program from the controller
// callbacks.
type Reader struct {
	cfg        ReaderConfig
	controller *chunk.Controller
	text       string
	chunks     []chunk.Chunk

	viewport    viewport.Model
	highlighter *Highlighter
	status      statusBar

	width  int
	height int
	ready  bool

	chunkIndex     int
	highlightIndex int
	tokens         []narrate.Token
	paused         bool
	finished       bool
}

// NewReader creates a reader for the given text. The chunk plan mirrors
// the controller's so chunk indices in progress messages line up with what
// is displayed.
func NewReader(cfg ReaderConfig, controller *chunk.Controller, text string) *Reader {
	return &Reader{
		cfg:            cfg,
		controller:     controller,
		text:           text,
		chunks:         chunk.Plan(text, cfg.ChunkLimit),
		highlighter:    NewHighlighter(cfg.HighlightColor),
		chunkIndex:     -1,
		highlightIndex: -1,
		status: statusBar{
			backend: cfg.BackendName,
			state:   "starting",
		},
	}
}

// Init starts narration playback.
func (r *Reader) Init() tea.Cmd {
	return func() tea.Msg {
		if err := r.controller.Play(context.Background(), r.text); err != nil {
			return narrate.NarrationErrorMsg{Err: err, Component: "controller"}
		}
		return nil
	}
}

// Update handles key presses and narration progress messages.
func (r *Reader) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return r.handleKey(msg)

	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		vpHeight := msg.Height - statusBarHeight - 1 // title line
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !r.ready {
			r.viewport = viewport.New(msg.Width, vpHeight)
			r.ready = true
		} else {
			r.viewport.Width = msg.Width
			r.viewport.Height = vpHeight
		}
		r.refreshContent()

	case narrate.NarrationStartedMsg:
		r.chunkIndex = msg.Chunk
		r.highlightIndex = -1
		if msg.Chunk >= 0 && msg.Chunk < len(r.chunks) {
			r.tokens = narrate.Tokenize(r.chunks[msg.Chunk].Sanitized)
		}
		r.status.state = "playing"
		r.status.chunk = msg.Chunk
		r.status.chunks = msg.Total
		r.status.word = 0
		r.status.words = msg.Words
		r.refreshContent()

	case narrate.WordHighlightedMsg:
		if msg.Chunk == r.chunkIndex {
			r.highlightIndex = msg.Index
			r.status.word = msg.Index
			r.refreshContent()
		}

	case narrate.NarrationPausedMsg:
		r.paused = true
		r.status.state = "paused"

	case narrate.NarrationResumedMsg:
		r.paused = false
		r.status.state = "playing"

	case narrate.NarrationEndedMsg:
		r.finished = true
		if msg.Reason == "user" {
			r.status.state = "stopped"
		} else {
			r.status.state = "done"
		}

	case narrate.NarrationErrorMsg:
		r.status.errMessage = msg.Err.Error()
		if !msg.Recoverable {
			r.finished = true
		}
	}

	var cmd tea.Cmd
	if r.ready {
		r.viewport, cmd = r.viewport.Update(msg)
	}
	return r, cmd
}

// handleKey dispatches key presses. Controller calls run inside commands,
// not inline: Stop blocks until the playback goroutine is done, and the
// controller's callbacks send messages into this program, which only the
// update loop can receive. The resulting state changes arrive back as
// narration messages.
func (r *Reader) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := r.controller
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return r, func() tea.Msg {
			ctrl.Stop()
			return tea.Quit()
		}

	case " ", "p":
		if r.finished {
			return r, nil
		}
		return r, func() tea.Msg {
			if ctrl.Paused() {
				ctrl.Resume()
			} else {
				ctrl.Pause()
			}
			return nil
		}

	case "s":
		return r, func() tea.Msg {
			ctrl.Stop()
			return nil
		}
	}
	return r, nil
}

// View renders the title, the text with the current word highlighted, and
// the status bar.
func (r *Reader) View() string {
	if !r.ready {
		return "\n  loading..."
	}
	return r.titleView() + "\n" + r.viewport.View() + "\n" + r.status.render(r.width)
}

func (r *Reader) titleView() string {
	title := r.cfg.Title
	if title == "" {
		title = "narrator"
	}
	maxWidth := r.width - 2
	if maxWidth > 0 && runewidth.StringWidth(title) > maxWidth {
		title = runewidth.Truncate(title, maxWidth, "…")
	}
	return titleStyle.Render(title)
}

// refreshContent rebuilds the viewport content: past chunks dimmed, the
// current chunk with its highlight, upcoming chunks plain.
func (r *Reader) refreshContent() {
	if !r.ready {
		return
	}

	width := r.viewport.Width - 2
	if width < 1 {
		width = r.viewport.Width
	}

	var b strings.Builder
	for i, c := range r.chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case i == r.chunkIndex:
			b.WriteString(r.highlighter.Render(r.tokens, r.highlightIndex, width))
		case i < r.chunkIndex:
			b.WriteString(chunkGapStyle.Render(wrapPlain(c.Sanitized, width)))
		default:
			b.WriteString(wrapPlain(c.Sanitized, width))
		}
	}
	r.viewport.SetContent(b.String())
	r.scrollToChunk()
}

// scrollToChunk keeps the active chunk visible as narration advances.
func (r *Reader) scrollToChunk() {
	if r.chunkIndex <= 0 {
		r.viewport.GotoTop()
		return
	}
	lines := 0
	width := r.viewport.Width - 2
	if width < 1 {
		width = r.viewport.Width
	}
	for i := 0; i < r.chunkIndex && i < len(r.chunks); i++ {
		lines += strings.Count(wrapPlain(r.chunks[i].Sanitized, width), "\n") + 2
	}
	if lines > r.viewport.YOffset+r.viewport.Height-2 {
		r.viewport.SetYOffset(lines)
	}
}

func wrapPlain(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}
