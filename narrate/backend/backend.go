// Package backend defines the speech synthesis backend contract.
//
// A backend turns sanitized text into audio plus a stream of typed timing
// events. The three backend kinds differ in the timing signals they can
// produce: local engines emit discrete word boundaries, batch remote
// engines emit none, and streaming remote engines emit character offsets.
package backend

import (
	"context"
	"sync"
	"time"

	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
)

// Provider identifies the kind of speech backend in use. It determines
// which synchronization strategy applies to a session.
type Provider int

const (
	// ProviderLocal is a local synthesis engine that emits discrete
	// per-word boundary events during playback.
	ProviderLocal Provider = iota
	// ProviderRemoteBatch is a remote engine that returns a single audio
	// asset with no native word timing.
	ProviderRemoteBatch
	// ProviderRemoteStreaming is a remote engine that emits fine-grained
	// character-offset events while audio plays.
	ProviderRemoteStreaming
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	switch p {
	case ProviderLocal:
		return "local-boundary"
	case ProviderRemoteBatch:
		return "remote-batch"
	case ProviderRemoteStreaming:
		return "remote-streaming"
	default:
		return "unknown"
	}
}

// EventKind identifies the type of a timing event.
type EventKind int

const (
	// EventStarted signals that audio playback timing is known. Duration
	// carries the total audio duration when the backend knows it.
	EventStarted EventKind = iota
	// EventWordBoundary signals playback has reached a word. WordIndex
	// carries the zero-based index into the spoken word sequence.
	EventWordBoundary
	// EventCharBoundary signals playback has reached a character offset
	// in the sanitized input text. CharOffset carries the offset.
	EventCharBoundary
	// EventEnded signals playback of the utterance has completed.
	EventEnded
	// EventError signals a synthesis or playback failure. Err carries
	// the cause. No further events follow.
	EventError
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventWordBoundary:
		return "word-boundary"
	case EventCharBoundary:
		return "char-boundary"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one timing signal from a speech backend.
type Event struct {
	Kind       EventKind
	WordIndex  int           // Valid for EventWordBoundary
	CharOffset int           // Valid for EventCharBoundary
	Duration   time.Duration // Valid for EventStarted
	Err        error         // Valid for EventError
}

// Capabilities describes what a backend can do.
type Capabilities struct {
	MaxTextLength   int  // Maximum reliable text length per utterance
	WordBoundaries  bool // Emits EventWordBoundary
	CharBoundaries  bool // Emits EventCharBoundary
	RequiresNetwork bool // Needs a network connection
}

// SpeakOptions configures one synthesis request.
type SpeakOptions struct {
	Voice string  // Backend-specific voice identifier
	Rate  float64 // Speech rate multiplier (1.0 = normal)
}

// Utterance is one synthesized piece of speech. Events delivers timing
// signals in order and is closed after EventEnded or EventError.
//
// Backends that pace boundary events against playback time must not start
// pacing until Begin is called: synthesis completes before the caller
// actually starts audible playback, and pacing from synthesis time would
// skew every boundary.
type Utterance struct {
	// Audio is the synthesized asset, nil when the backend produced no
	// playable audio (mock scripting, synthesis of empty text).
	Audio *audio.Audio

	// Events delivers timing events in emission order.
	Events <-chan Event

	beginOnce sync.Once
	begin     chan struct{}
}

// NewUtterance creates an utterance around an event channel. The returned
// release channel is closed when Begin is called; pacing backends block on
// it before emitting timed events.
func NewUtterance(a *audio.Audio, events <-chan Event) (*Utterance, <-chan struct{}) {
	u := &Utterance{
		Audio:  a,
		Events: events,
		begin:  make(chan struct{}),
	}
	return u, u.begin
}

// Begin signals that audible playback has started. Idempotent.
func (u *Utterance) Begin() {
	u.beginOnce.Do(func() {
		close(u.begin)
	})
}

// Backend is a speech synthesis engine.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// Provider returns the backend kind.
	Provider() Provider

	// Capabilities returns what the backend can do.
	Capabilities() Capabilities

	// Speak synthesizes the given sanitized text. The utterance's event
	// channel is closed once the utterance has ended or failed.
	// Cancelling ctx aborts synthesis and event delivery.
	Speak(ctx context.Context, text string, opts SpeakOptions) (*Utterance, error)

	// Close releases backend resources.
	Close() error
}
