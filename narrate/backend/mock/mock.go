// Package mock provides a scriptable speech backend for testing.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

// Step is one scripted event with an optional delay before emission.
type Step struct {
	Delay time.Duration
	Event backend.Event
}

// Backend implements backend.Backend with scripted events. When no script
// is set, Speak synthesizes silence and emits Started/word boundaries/Ended
// paced by an estimated words-per-minute rate, so it behaves like a
// well-mannered local engine out of the box.
type Backend struct {
	mu sync.Mutex

	provider backend.Provider
	caps     backend.Capabilities
	script   []Step

	// Failure injection
	speakErr error

	// Timing for the default (unscripted) behavior
	wordsPerMinute int

	// State for assertions
	speakCalls int
	lastText   string
	closed     bool
}

// Option configures a mock backend.
type Option func(*Backend)

// WithProvider sets the provider kind the mock reports.
func WithProvider(p backend.Provider) Option {
	return func(b *Backend) {
		b.provider = p
		b.caps = capsFor(p)
	}
}

// WithScript replaces the default event generation with a fixed script.
func WithScript(steps []Step) Option {
	return func(b *Backend) { b.script = steps }
}

// WithSpeakError makes Speak fail with the given error.
func WithSpeakError(err error) Option {
	return func(b *Backend) { b.speakErr = err }
}

// WithWordsPerMinute sets the pacing rate for unscripted playback.
func WithWordsPerMinute(wpm int) Option {
	return func(b *Backend) {
		if wpm > 0 {
			b.wordsPerMinute = wpm
		}
	}
}

func capsFor(p backend.Provider) backend.Capabilities {
	switch p {
	case backend.ProviderRemoteBatch:
		return backend.Capabilities{MaxTextLength: 500, RequiresNetwork: true}
	case backend.ProviderRemoteStreaming:
		return backend.Capabilities{MaxTextLength: 4000, CharBoundaries: true, RequiresNetwork: true}
	default:
		return backend.Capabilities{MaxTextLength: 2000, WordBoundaries: true}
	}
}

// New creates a mock backend. By default it reports ProviderLocal.
func New(opts ...Option) *Backend {
	b := &Backend{
		provider:       backend.ProviderLocal,
		caps:           capsFor(backend.ProviderLocal),
		wordsPerMinute: 600, // fast default keeps tests quick
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "mock" }

// Provider returns the configured provider kind.
func (b *Backend) Provider() backend.Provider {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.provider
}

// Capabilities returns the configured capabilities.
func (b *Backend) Capabilities() backend.Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caps
}

// Speak synthesizes silence and emits scripted or generated events.
func (b *Backend) Speak(ctx context.Context, text string, _ backend.SpeakOptions) (*backend.Utterance, error) {
	b.mu.Lock()
	b.speakCalls++
	b.lastText = text
	script := b.script
	speakErr := b.speakErr
	wpm := b.wordsPerMinute
	provider := b.provider
	b.mu.Unlock()

	if speakErr != nil {
		return nil, speakErr
	}

	words := strings.Fields(text)
	perWord := time.Minute / time.Duration(wpm)
	duration := time.Duration(len(words)) * perWord

	sampleRate := 22050
	samples := int(duration.Seconds() * float64(sampleRate))
	a := &audio.Audio{
		Data:       make([]byte, samples*2),
		Format:     audio.FormatPCM16,
		SampleRate: sampleRate,
		Channels:   1,
		Duration:   duration,
	}

	events := make(chan backend.Event, 16)
	utt, begun := backend.NewUtterance(a, events)

	if script == nil {
		script = defaultScript(provider, words, perWord, duration)
	}

	go func() {
		defer close(events)

		select {
		case <-begun:
		case <-ctx.Done():
			return
		}

		for _, step := range script {
			if step.Delay > 0 {
				select {
				case <-time.After(step.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case events <- step.Event:
			case <-ctx.Done():
				return
			}
			if step.Event.Kind == backend.EventEnded || step.Event.Kind == backend.EventError {
				return
			}
		}
	}()

	return utt, nil
}

// defaultScript builds the event sequence a real engine of the given kind
// would produce.
func defaultScript(p backend.Provider, words []string, perWord, duration time.Duration) []Step {
	steps := []Step{{Event: backend.Event{Kind: backend.EventStarted, Duration: duration}}}

	switch p {
	case backend.ProviderLocal:
		for i := range words {
			delay := time.Duration(0)
			if i > 0 {
				delay = perWord
			}
			steps = append(steps, Step{Delay: delay, Event: backend.Event{Kind: backend.EventWordBoundary, WordIndex: i}})
		}
	case backend.ProviderRemoteStreaming:
		offset := 0
		for i, w := range words {
			delay := time.Duration(0)
			if i > 0 {
				delay = perWord
			}
			steps = append(steps, Step{Delay: delay, Event: backend.Event{Kind: backend.EventCharBoundary, CharOffset: offset}})
			// CharOffset counts characters, not bytes.
			offset += utf8.RuneCountInString(w) + 1
		}
	case backend.ProviderRemoteBatch:
		// No boundary events: batch engines only report start and end.
	}

	steps = append(steps, Step{Delay: perWord, Event: backend.Event{Kind: backend.EventEnded}})
	return steps
}

// Close releases the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// SpeakCalls returns the number of Speak invocations.
func (b *Backend) SpeakCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speakCalls
}

// LastText returns the text passed to the most recent Speak call.
func (b *Backend) LastText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastText
}
