package chunk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/francktshibala/bookbridge-narrator/narrate"
	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend/mock"
	"github.com/francktshibala/bookbridge-narrator/narrate/cache"
)

// progressRecorder collects controller callbacks in a thread-safe way.
type progressRecorder struct {
	mu         sync.Mutex
	chunks     []int
	highlights []string
	paused     int
	resumed    int
	ended      chan string
	errs       []error
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{ended: make(chan string, 1)}
}

func (r *progressRecorder) callbacks() Callbacks {
	return Callbacks{
		OnChunkStart: func(chunk, total, words int) {
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
		},
		OnHighlight: func(chunk, word int, text string) {
			r.mu.Lock()
			r.highlights = append(r.highlights, text)
			r.mu.Unlock()
		},
		OnPaused: func(position time.Duration, chunk int) {
			r.mu.Lock()
			r.paused++
			r.mu.Unlock()
		},
		OnResumed: func(position time.Duration, chunk int) {
			r.mu.Lock()
			r.resumed++
			r.mu.Unlock()
		},
		OnEnded: func(reason string) { r.ended <- reason },
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *progressRecorder) waitEnded(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-r.ended:
		return reason
	case <-time.After(5 * time.Second):
		t.Fatal("playback never ended")
		return ""
	}
}

func (r *progressRecorder) highlightedWords() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.highlights))
	copy(out, r.highlights)
	return out
}

func (r *progressRecorder) startedChunks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func TestControllerPlaysAllChunks(t *testing.T) {
	b := mock.New(mock.WithWordsPerMinute(6000))
	player := audio.NewMockPlayer()
	rec := newProgressRecorder()

	c := NewController(b, narrate.NewManager(), player, nil, Options{
		HighlightEnabled:   true,
		ChunkLimitOverride: 15,
	}, rec.callbacks())

	if err := c.Play(context.Background(), "One two three. Four five six. Seven eight nine."); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if reason := rec.waitEnded(t); reason != "complete" {
		t.Fatalf("ended with %q, want complete", reason)
	}

	if got := rec.startedChunks(); len(got) != 3 {
		t.Errorf("started chunks %v, want 3 chunks", got)
	}
	if got := player.PlayCalls(); got != 3 {
		t.Errorf("PlayCalls = %d, want 3", got)
	}
	words := rec.highlightedWords()
	if len(words) != 9 {
		t.Errorf("highlighted %d words, want 9: %v", len(words), words)
	}
	if c.Playing() {
		t.Error("controller still reports playing")
	}
}

func TestControllerHighlightOrderWithinChunk(t *testing.T) {
	b := mock.New(mock.WithWordsPerMinute(6000))
	player := audio.NewMockPlayer()
	rec := newProgressRecorder()

	c := NewController(b, narrate.NewManager(), player, nil, Options{HighlightEnabled: true}, rec.callbacks())
	if err := c.Play(context.Background(), "alpha beta gamma delta"); err != nil {
		t.Fatal(err)
	}
	rec.waitEnded(t)

	expected := []string{"alpha", "beta", "gamma", "delta"}
	got := rec.highlightedWords()
	if len(got) != len(expected) {
		t.Fatalf("highlights = %v, want %v", got, expected)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("highlights = %v, want %v", got, expected)
		}
	}
}

func TestControllerEmptyText(t *testing.T) {
	c := NewController(mock.New(), narrate.NewManager(), audio.NewMockPlayer(), nil, Options{}, Callbacks{})
	if err := c.Play(context.Background(), "   "); !errors.Is(err, narrate.ErrEmptyText) {
		t.Errorf("Play blank = %v, want ErrEmptyText", err)
	}
}

func TestControllerRejectsConcurrentPlay(t *testing.T) {
	b := mock.New(mock.WithWordsPerMinute(60)) // slow enough to still be playing
	rec := newProgressRecorder()
	c := NewController(b, narrate.NewManager(), audio.NewMockPlayer(), nil, Options{}, rec.callbacks())

	if err := c.Play(context.Background(), "one two three"); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.Play(context.Background(), "four five"); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("second Play = %v, want ErrAlreadyPlaying", err)
	}
}

func TestControllerStop(t *testing.T) {
	b := mock.New(mock.WithWordsPerMinute(60))
	player := audio.NewMockPlayer()
	rec := newProgressRecorder()
	c := NewController(b, narrate.NewManager(), player, nil, Options{HighlightEnabled: true}, rec.callbacks())

	if err := c.Play(context.Background(), "one two three four five six seven"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	if reason := rec.waitEnded(t); reason != "user" {
		t.Errorf("ended with %q, want user", reason)
	}
	if c.Playing() {
		t.Error("controller reports playing after Stop")
	}

	// Stopping twice is harmless.
	c.Stop()
}

func TestControllerSpeakError(t *testing.T) {
	boom := errors.New("engine exploded")
	b := mock.New(mock.WithSpeakError(boom))
	rec := newProgressRecorder()
	c := NewController(b, narrate.NewManager(), audio.NewMockPlayer(), nil, Options{}, rec.callbacks())

	if err := c.Play(context.Background(), "some words here"); err != nil {
		t.Fatal(err)
	}
	if reason := rec.waitEnded(t); reason != "error" {
		t.Errorf("ended with %q, want error", reason)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) == 0 || !errors.Is(rec.errs[0], boom) {
		t.Errorf("error callback = %v, want wrapped %v", rec.errs, boom)
	}
}

func TestControllerScriptedErrorEvent(t *testing.T) {
	boom := errors.New("stream cut")
	b := mock.New(mock.WithScript([]mock.Step{
		{Event: backend.Event{Kind: backend.EventStarted}},
		{Event: backend.Event{Kind: backend.EventError, Err: boom}},
	}))
	rec := newProgressRecorder()
	c := NewController(b, narrate.NewManager(), audio.NewMockPlayer(), nil, Options{}, rec.callbacks())

	if err := c.Play(context.Background(), "doomed words"); err != nil {
		t.Fatal(err)
	}
	if reason := rec.waitEnded(t); reason != "error" {
		t.Errorf("ended with %q, want error", reason)
	}
}

func TestControllerCachesBatchAudio(t *testing.T) {
	b := mock.New(mock.WithProvider(backend.ProviderRemoteBatch), mock.WithWordsPerMinute(6000))
	player := audio.NewMockPlayer()
	audioCache := cache.New(1 << 20)
	rec := newProgressRecorder()
	c := NewController(b, narrate.NewManager(), player, audioCache, Options{}, rec.callbacks())

	text := "repeatable words"
	if err := c.Play(context.Background(), text); err != nil {
		t.Fatal(err)
	}
	rec.waitEnded(t)
	if got := b.SpeakCalls(); got != 1 {
		t.Fatalf("SpeakCalls after first run = %d, want 1", got)
	}

	if err := c.Play(context.Background(), text); err != nil {
		t.Fatal(err)
	}
	rec.waitEnded(t)
	if got := b.SpeakCalls(); got != 1 {
		t.Errorf("SpeakCalls after cached run = %d, want 1", got)
	}
	if got := player.PlayCalls(); got != 2 {
		t.Errorf("PlayCalls = %d, want 2", got)
	}
}

func TestControllerPauseResume(t *testing.T) {
	b := mock.New(mock.WithWordsPerMinute(60))
	player := audio.NewMockPlayer()
	rec := newProgressRecorder()
	c := NewController(b, narrate.NewManager(), player, nil, Options{}, rec.callbacks())

	if err := c.Play(context.Background(), "one two three four"); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	time.Sleep(20 * time.Millisecond)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !c.Paused() {
		t.Error("Paused() = false after Pause")
	}
	if player.IsPlaying() {
		t.Error("player still playing while paused")
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if c.Paused() {
		t.Error("Paused() = true after Resume")
	}

	rec.mu.Lock()
	paused, resumed := rec.paused, rec.resumed
	rec.mu.Unlock()
	if paused != 1 || resumed != 1 {
		t.Errorf("paused/resumed callbacks = %d/%d, want 1/1", paused, resumed)
	}

	// Pause when idle is a no-op and stays silent.
	c.Stop()
	if err := c.Pause(); err != nil {
		t.Errorf("Pause while stopped = %v, want nil", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.paused != 1 {
		t.Errorf("idle Pause fired a callback: %d", rec.paused)
	}
}
