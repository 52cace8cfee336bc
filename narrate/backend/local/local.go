// Package local implements a speech backend that drives a local piper-style
// synthesis binary. Each request runs a fresh process: piper startup is fast
// and a crashed process then only costs one utterance.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

const (
	defaultSampleRate = 22050
	defaultTimeout    = 30 * time.Second
	maxTextLength     = 2000
)

// Config configures the local engine.
type Config struct {
	Binary  string        // Synthesis binary, searched on PATH
	Model   string        // Voice model identifier
	Timeout time.Duration // Per-request synthesis timeout
}

// Backend synthesizes speech by piping text through a local binary that
// writes raw PCM to stdout. Word boundaries are paced against the real
// audio duration once playback begins: the engine itself reports no
// per-word timing, but the audio length it produced is exact.
type Backend struct {
	cfg    Config
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a local backend. It verifies the binary is reachable so a
// missing installation surfaces at startup rather than mid-narration.
func New(cfg Config) (*Backend, error) {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("local engine binary %q: %w", cfg.Binary, err)
	}
	return &Backend{
		cfg:    cfg,
		logger: log.Default().WithPrefix("local"),
	}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "local" }

// Provider returns the backend kind.
func (b *Backend) Provider() backend.Provider { return backend.ProviderLocal }

// Capabilities returns what the backend can do.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		MaxTextLength:  maxTextLength,
		WordBoundaries: true,
	}
}

// Speak synthesizes the text in one subprocess run and returns an
// utterance whose word boundaries are emitted during playback.
func (b *Backend) Speak(ctx context.Context, text string, opts backend.SpeakOptions) (*backend.Utterance, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("local engine: %w", context.Canceled)
	}
	b.mu.Unlock()

	clip, err := b.synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	events := make(chan backend.Event, len(words)+3)
	utt, begun := backend.NewUtterance(clip, events)

	go pumpBoundaries(ctx, events, begun, len(words), clip.Duration)
	return utt, nil
}

func (b *Backend) synthesize(ctx context.Context, text string, opts backend.SpeakOptions) (*audio.Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	args := []string{"--output-raw"}
	model := b.cfg.Model
	if opts.Voice != "" {
		model = opts.Voice
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if opts.Rate > 0 && opts.Rate != 1.0 {
		// Piper expresses speed as length scale, the inverse of rate.
		args = append(args, "--length-scale", fmt.Sprintf("%.3f", 1.0/opts.Rate))
	}

	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(text + "\n")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("local synthesis: %w", ctx.Err())
		}
		return nil, fmt.Errorf("local synthesis: %w: %s", err, firstLine(stderr.String()))
	}

	data := stdout.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("local synthesis: %s produced no audio", b.cfg.Binary)
	}

	clip := &audio.Audio{
		Data:       data,
		Format:     audio.FormatPCM16,
		SampleRate: defaultSampleRate,
		Channels:   1,
		Duration:   pcm16Duration(len(data), defaultSampleRate, 1),
	}
	b.logger.Debug("synthesized", "bytes", len(data), "duration", clip.Duration, "took", time.Since(start))
	return clip, nil
}

// pumpBoundaries emits Started, evenly spaced word boundaries, and Ended,
// paced against the audio duration. It waits for Begin so pacing starts at
// audible playback, not synthesis completion.
func pumpBoundaries(ctx context.Context, events chan<- backend.Event, begun <-chan struct{}, wordCount int, d time.Duration) {
	defer close(events)

	select {
	case <-begun:
	case <-ctx.Done():
		return
	}

	send := func(ev backend.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(backend.Event{Kind: backend.EventStarted, Duration: d}) {
		return
	}

	if wordCount > 0 {
		perWord := d / time.Duration(wordCount)
		if !send(backend.Event{Kind: backend.EventWordBoundary, WordIndex: 0}) {
			return
		}
		for i := 1; i < wordCount; i++ {
			select {
			case <-time.After(perWord):
			case <-ctx.Done():
				return
			}
			if !send(backend.Event{Kind: backend.EventWordBoundary, WordIndex: i}) {
				return
			}
		}
		select {
		case <-time.After(perWord):
		case <-ctx.Done():
			return
		}
	}
	send(backend.Event{Kind: backend.EventEnded})
}

// Close marks the backend unusable. In-flight utterances finish on their
// own contexts.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func pcm16Duration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
