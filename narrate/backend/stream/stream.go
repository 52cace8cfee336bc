// Package stream implements a speech backend for streaming WebSocket
// synthesis services that interleave audio frames with character-offset
// boundary metadata.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

const (
	defaultTimeout = 30 * time.Second
	maxTextLength  = 4000
)

// Config configures the streaming backend.
type Config struct {
	URL     string        // WebSocket endpoint (ws:// or wss://)
	APIKey  string        // Sent as a bearer token when set
	Timeout time.Duration // Synthesis timeout for one utterance
}

// Backend synthesizes speech over a WebSocket session. The service sends
// binary audio frames interleaved with JSON boundary metadata carrying
// character offsets into the submitted text and the audio time at which
// each offset is spoken. The full utterance is collected before playback,
// then boundaries are replayed at their audio offsets.
type Backend struct {
	cfg    Config
	logger *log.Logger
}

// New creates a streaming backend.
func New(cfg Config) (*Backend, error) {
	if cfg.URL == "" {
		return nil, errors.New("stream: endpoint URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Backend{
		cfg:    cfg,
		logger: log.Default().WithPrefix("stream"),
	}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "stream" }

// Provider returns the backend kind.
func (b *Backend) Provider() backend.Provider { return backend.ProviderRemoteStreaming }

// Capabilities returns what the backend can do.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		MaxTextLength:   maxTextLength,
		CharBoundaries:  true,
		RequiresNetwork: true,
	}
}

// synthesisRequest is the opening JSON message of a session.
type synthesisRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
}

// metadata is one JSON message from the service.
type metadata struct {
	Type string `json:"type"` // "boundary", "end" or "error"

	// Boundary fields
	CharOffset    int   `json:"char_offset"`
	AudioOffsetMS int64 `json:"audio_offset_ms"`

	// End fields
	DurationMS int64 `json:"duration_ms"`
	SampleRate int   `json:"sample_rate,omitempty"`
	Channels   int   `json:"channels,omitempty"`

	// Error detail
	Message string `json:"message,omitempty"`
}

// boundary is one spoken position in the utterance.
type boundary struct {
	charOffset  int
	audioOffset time.Duration
}

// Speak runs one synthesis session and returns an utterance whose
// character boundaries replay at their audio offsets once Begin is called.
func (b *Backend) Speak(ctx context.Context, text string, opts backend.SpeakOptions) (*backend.Utterance, error) {
	sctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	clip, boundaries, err := b.collect(sctx, text, opts)
	if err != nil {
		return nil, err
	}

	events := make(chan backend.Event, len(boundaries)+3)
	utt, begun := backend.NewUtterance(clip, events)

	go replayBoundaries(ctx, events, begun, clip.Duration, boundaries)
	return utt, nil
}

// collect runs the WebSocket session to completion, accumulating audio
// frames and boundary metadata.
func (b *Backend) collect(ctx context.Context, text string, opts backend.SpeakOptions) (*audio.Audio, []boundary, error) {
	var dialOpts *websocket.DialOptions
	if b.cfg.APIKey != "" {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+b.cfg.APIKey)
		dialOpts = &websocket.DialOptions{HTTPHeader: header}
	}

	conn, _, err := websocket.Dial(ctx, b.cfg.URL, dialOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("stream: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	req, _ := json.Marshal(synthesisRequest{Text: text, Voice: opts.Voice, Rate: opts.Rate})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		return nil, nil, fmt.Errorf("stream: send request: %w", err)
	}

	var (
		data       []byte
		boundaries []boundary
		sampleRate = 22050
		channels   = 1
		duration   time.Duration
	)

	start := time.Now()
	for {
		kind, msg, err := conn.Read(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("stream: read: %w", err)
		}

		if kind == websocket.MessageBinary {
			data = append(data, msg...)
			continue
		}

		md, err := parseMetadata(msg)
		if err != nil {
			b.logger.Debug("unparseable metadata skipped", "err", err)
			continue
		}
		switch md.Type {
		case "boundary":
			boundaries = append(boundaries, boundary{
				charOffset:  md.CharOffset,
				audioOffset: time.Duration(md.AudioOffsetMS) * time.Millisecond,
			})
		case "end":
			duration = time.Duration(md.DurationMS) * time.Millisecond
			if md.SampleRate > 0 {
				sampleRate = md.SampleRate
			}
			if md.Channels > 0 {
				channels = md.Channels
			}
			if len(data) == 0 {
				return nil, nil, errors.New("stream: service sent no audio")
			}
			// The service reports offsets in speaking order, but a
			// sorted list keeps replay sane if frames arrive reordered.
			sort.Slice(boundaries, func(i, j int) bool {
				return boundaries[i].audioOffset < boundaries[j].audioOffset
			})
			clip := &audio.Audio{
				Data:       data,
				Format:     audio.FormatPCM16,
				SampleRate: sampleRate,
				Channels:   channels,
				Duration:   duration,
			}
			b.logger.Debug("synthesized", "bytes", len(data), "boundaries", len(boundaries), "took", time.Since(start))
			return clip, boundaries, nil
		case "error":
			return nil, nil, fmt.Errorf("stream: service error: %s", md.Message)
		default:
			b.logger.Debug("unknown metadata type skipped", "type", md.Type)
		}
	}
}

func parseMetadata(msg []byte) (metadata, error) {
	var md metadata
	if err := json.Unmarshal(msg, &md); err != nil {
		return metadata{}, err
	}
	if md.Type == "" {
		return metadata{}, errors.New("metadata without type")
	}
	return md, nil
}

// replayBoundaries emits Started, each character boundary at its audio
// offset, and Ended. Pacing starts at Begin.
func replayBoundaries(ctx context.Context, events chan<- backend.Event, begun <-chan struct{}, d time.Duration, boundaries []boundary) {
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

	playStart := time.Now()
	for _, bd := range boundaries {
		if wait := bd.audioOffset - time.Since(playStart); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
		if !send(backend.Event{Kind: backend.EventCharBoundary, CharOffset: bd.charOffset}) {
			return
		}
	}
	if wait := d - time.Since(playStart); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
	send(backend.Event{Kind: backend.EventEnded})
}

// Close releases backend resources. Sessions are per-utterance, so there
// is nothing persistent to tear down.
func (b *Backend) Close() error { return nil }
