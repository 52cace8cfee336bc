package chunk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/francktshibala/bookbridge-narrator/narrate"
	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
	"github.com/francktshibala/bookbridge-narrator/narrate/cache"
)

// ErrAlreadyPlaying indicates Play was called during active playback.
var ErrAlreadyPlaying = errors.New("chunk: playback already in progress")

// Options configures chunked playback.
type Options struct {
	Voice              string
	Rate               float64
	HighlightEnabled   bool
	ChunkPause         time.Duration // Silence inserted between chunks
	Prefetch           bool          // Synthesize the next chunk during playback
	ChunkLimitOverride int           // Overrides the backend's max text length when > 0
}

// Callbacks receive playback progress. Progress callbacks are invoked from
// the playback goroutine; OnPaused and OnResumed from whichever goroutine
// called Pause or Resume. None of them may block.
type Callbacks struct {
	OnChunkStart func(chunk, total, words int)
	OnHighlight  func(chunk, word int, text string)
	OnPaused     func(position time.Duration, chunk int)
	OnResumed    func(position time.Duration, chunk int)
	OnEnded      func(reason string)
	OnError      func(err error)
}

// Controller plays a long text as a sequence of chunks, one highlighting
// session per chunk. Playback runs on its own goroutine; Pause, Resume and
// Stop may be called from any goroutine.
type Controller struct {
	backend backend.Backend
	manager *narrate.Manager
	player  audio.Player
	cache   *cache.AudioCache
	logger  *log.Logger

	opts Options
	cbs  Callbacks

	mu       sync.Mutex
	playing  bool
	paused   bool
	chunkIdx int
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewController wires a backend, session manager and player together. The
// cache may be nil to disable audio caching.
func NewController(b backend.Backend, m *narrate.Manager, p audio.Player, c *cache.AudioCache, opts Options, cbs Callbacks) *Controller {
	if opts.Rate == 0 {
		opts.Rate = 1.0
	}
	return &Controller{
		backend: b,
		manager: m,
		player:  p,
		cache:   c,
		logger:  log.Default().WithPrefix("chunk"),
		opts:    opts,
		cbs:     cbs,
	}
}

// Play starts narrating the text and returns once playback is running.
// It fails if playback is already in progress or the text has no words.
func (c *Controller) Play(ctx context.Context, text string) error {
	limit := c.opts.ChunkLimitOverride
	if limit <= 0 {
		limit = c.backend.Capabilities().MaxTextLength
	}
	chunks := Plan(text, limit)
	if len(chunks) == 0 {
		return narrate.ErrEmptyText
	}

	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return ErrAlreadyPlaying
	}
	ctx, cancel := context.WithCancel(ctx)
	c.playing = true
	c.paused = false
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.logger.Debug("playback starting", "chunks", len(chunks), "backend", c.backend.Name())

	go func() {
		defer close(done)
		defer cancel()

		err := c.playChunks(ctx, chunks)

		c.mu.Lock()
		c.playing = false
		c.paused = false
		c.cancel = nil
		c.mu.Unlock()

		switch {
		case err == nil:
			c.emitEnded("complete")
		case errors.Is(err, context.Canceled):
			c.emitEnded("user")
		default:
			c.logger.Error("playback failed", "err", err)
			if c.cbs.OnError != nil {
				c.cbs.OnError(err)
			}
			c.emitEnded("error")
		}
	}()
	return nil
}

func (c *Controller) emitEnded(reason string) {
	if c.cbs.OnEnded != nil {
		c.cbs.OnEnded(reason)
	}
}

// playChunks narrates each chunk in order, optionally synthesizing the
// next chunk while the current one plays.
func (c *Controller) playChunks(ctx context.Context, chunks []Chunk) error {
	var next <-chan synthResult

	for i, ch := range chunks {
		var utt *backend.Utterance
		var err error

		if next != nil {
			res := <-next
			utt, err = res.utt, res.err
		} else {
			utt, err = c.synthesize(ctx, ch)
		}
		if err != nil {
			return fmt.Errorf("synthesize chunk %d: %w", ch.Index, err)
		}

		if c.opts.Prefetch && i+1 < len(chunks) {
			next = c.prefetch(ctx, chunks[i+1])
		} else {
			next = nil
		}

		if err := c.playChunk(ctx, ch, len(chunks), utt); err != nil {
			return err
		}

		if c.opts.ChunkPause > 0 && i+1 < len(chunks) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.opts.ChunkPause):
			}
		}
	}
	return nil
}

type synthResult struct {
	utt *backend.Utterance
	err error
}

func (c *Controller) prefetch(ctx context.Context, ch Chunk) <-chan synthResult {
	out := make(chan synthResult, 1)
	go func() {
		utt, err := c.synthesize(ctx, ch)
		out <- synthResult{utt, err}
	}()
	return out
}

// synthesize produces an utterance for a chunk, serving batch audio from
// the cache when possible. Only batch audio is cached: its timing is
// estimated from the duration anyway, while local and streaming utterances
// carry boundary events the cache cannot reproduce.
func (c *Controller) synthesize(ctx context.Context, ch Chunk) (*backend.Utterance, error) {
	opts := backend.SpeakOptions{Voice: c.opts.Voice, Rate: c.opts.Rate}

	cacheable := c.cache != nil && c.backend.Provider() == backend.ProviderRemoteBatch
	var key string
	if cacheable {
		key = cache.Key(c.backend.Name(), opts.Voice, ch.Sanitized, opts.Rate)
		if clip, ok := c.cache.Get(key); ok {
			c.logger.Debug("cache hit", "chunk", ch.Index)
			return replayUtterance(clip), nil
		}
	}

	utt, err := c.backend.Speak(ctx, ch.Sanitized, opts)
	if err != nil {
		return nil, err
	}
	if cacheable && utt.Audio != nil {
		if err := c.cache.Put(key, utt.Audio); err != nil && !errors.Is(err, cache.ErrItemTooLarge) {
			c.logger.Warn("cache store failed", "err", err)
		}
	}
	return utt, nil
}

// replayUtterance wraps cached batch audio in an utterance that emits
// Started and Ended the way the original backend would have.
func replayUtterance(clip *audio.Audio) *backend.Utterance {
	events := make(chan backend.Event, 2)
	utt, begun := backend.NewUtterance(clip, events)
	go func() {
		defer close(events)
		<-begun
		events <- backend.Event{Kind: backend.EventStarted, Duration: clip.Duration}
		if clip.Duration > 0 {
			time.Sleep(clip.Duration)
		}
		events <- backend.Event{Kind: backend.EventEnded}
	}()
	return utt
}

// playChunk runs one highlighting session over one utterance.
func (c *Controller) playChunk(ctx context.Context, ch Chunk, total int, utt *backend.Utterance) error {
	tokens := narrate.Tokenize(ch.Sanitized)

	c.mu.Lock()
	c.chunkIdx = ch.Index
	c.mu.Unlock()

	id, err := c.manager.Start(narrate.SessionConfig{
		Provider:           c.backend.Provider(),
		Text:               ch.Sanitized,
		EnableHighlighting: c.opts.HighlightEnabled,
		OnWordHighlight: func(idx int) {
			if c.cbs.OnHighlight != nil && idx < len(tokens) {
				c.cbs.OnHighlight(ch.Index, idx, tokens[idx].Text)
			}
		},
		OnError: c.cbs.OnError,
	})
	if err != nil {
		return err
	}
	defer c.manager.EndSession(id)

	if utt.Audio != nil {
		if err := c.player.Play(utt.Audio); err != nil {
			return fmt.Errorf("play chunk %d: %w", ch.Index, err)
		}
	}
	utt.Begin()

	if c.cbs.OnChunkStart != nil {
		c.cbs.OnChunkStart(ch.Index, total, len(tokens))
	}

	g, gctx := errgroup.WithContext(ctx)

	// Event pump: the single consumer of the utterance's event stream.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-utt.Events:
				if !ok {
					return nil
				}
				c.manager.HandleEvent(id, ev)
				if ev.Kind == backend.EventError {
					return fmt.Errorf("chunk %d: %w", ch.Index, ev.Err)
				}
			}
		}
	})

	err = g.Wait()
	c.player.Stop()
	if err != nil {
		c.manager.Stop(id)
	}
	return err
}

// Pause suspends audible playback. Estimated highlighting keeps its own
// clock, so a long pause on a batch backend lets the highlight run ahead;
// boundary-driven backends stay aligned.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if !c.playing || c.paused {
		c.mu.Unlock()
		return nil
	}
	if err := c.player.Pause(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.paused = true
	chunkIdx := c.chunkIdx
	c.mu.Unlock()

	if c.cbs.OnPaused != nil {
		c.cbs.OnPaused(c.player.Position(), chunkIdx)
	}
	return nil
}

// Resume continues playback after Pause.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if !c.playing || !c.paused {
		c.mu.Unlock()
		return nil
	}
	if err := c.player.Resume(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.paused = false
	chunkIdx := c.chunkIdx
	c.mu.Unlock()

	if c.cbs.OnResumed != nil {
		c.cbs.OnResumed(c.player.Position(), chunkIdx)
	}
	return nil
}

// Paused reports whether playback is currently paused.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Playing reports whether a playback run is in progress.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Stop aborts playback. It blocks until the playback goroutine has
// finished, so callbacks are quiet once Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	paused := c.paused
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	if paused {
		// A paused player never drains, which would stall the playback
		// goroutine's shutdown.
		c.player.Resume()
	}
	cancel()
	c.player.Stop()
	if done != nil {
		<-done
	}
}

// Close stops playback and releases the backend and player.
func (c *Controller) Close() error {
	c.Stop()
	perr := c.player.Close()
	berr := c.backend.Close()
	if perr != nil {
		return perr
	}
	return berr
}
