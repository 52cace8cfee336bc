// Package remote implements a speech backend for batch HTTP synthesis
// services: one POST per utterance, one audio asset back, no native word
// timing.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

const (
	defaultTimeout   = 15 * time.Second
	maxTextLength    = 500
	maxResponseBytes = 32 << 20
)

// Config configures the remote batch backend.
type Config struct {
	URL     string        // Synthesis endpoint, receives a JSON POST
	APIKey  string        // Sent as a bearer token when set
	Timeout time.Duration // Per-request timeout
}

// Backend synthesizes speech through a batch HTTP API. The service returns
// a complete audio asset with its duration; word timing is estimated
// downstream from that duration.
type Backend struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
}

// New creates a remote batch backend.
func New(cfg Config) (*Backend, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote: endpoint URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Backend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.Default().WithPrefix("remote"),
	}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "remote" }

// Provider returns the backend kind.
func (b *Backend) Provider() backend.Provider { return backend.ProviderRemoteBatch }

// Capabilities returns what the backend can do.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		MaxTextLength:   maxTextLength,
		RequiresNetwork: true,
	}
}

// synthesisRequest is the JSON payload sent to the service.
type synthesisRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
}

// synthesisResponse is the JSON payload the service returns.
type synthesisResponse struct {
	Audio      string `json:"audio"` // base64-encoded PCM
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"` // error detail on failure
}

// Speak posts the text and returns an utterance that reports Started with
// the service's duration once playback begins, then Ended after that
// duration elapses. No boundary events are produced.
func (b *Backend) Speak(ctx context.Context, text string, opts backend.SpeakOptions) (*backend.Utterance, error) {
	clip, err := b.synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	events := make(chan backend.Event, 2)
	utt, begun := backend.NewUtterance(clip, events)

	go func() {
		defer close(events)
		select {
		case <-begun:
		case <-ctx.Done():
			return
		}
		events <- backend.Event{Kind: backend.EventStarted, Duration: clip.Duration}
		if clip.Duration > 0 {
			select {
			case <-time.After(clip.Duration):
			case <-ctx.Done():
				return
			}
		}
		events <- backend.Event{Kind: backend.EventEnded}
	}()

	return utt, nil
}

func (b *Backend) synthesize(ctx context.Context, text string, opts backend.SpeakOptions) (*audio.Audio, error) {
	payload, err := json.Marshal(synthesisRequest{Text: text, Voice: opts.Voice, Rate: opts.Rate})
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var detail synthesisResponse
		if json.Unmarshal(body, &detail) == nil && detail.Message != "" {
			return nil, fmt.Errorf("remote: %s: %s", resp.Status, detail.Message)
		}
		return nil, fmt.Errorf("remote: unexpected status %s", resp.Status)
	}

	var sr synthesisResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(sr.Audio)
	if err != nil {
		return nil, fmt.Errorf("remote: decode audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("remote: service returned no audio")
	}

	clip := &audio.Audio{
		Data:       data,
		Format:     parseFormat(sr.Format),
		SampleRate: orDefault(sr.SampleRate, 22050),
		Channels:   orDefault(sr.Channels, 1),
		Duration:   time.Duration(sr.DurationMS) * time.Millisecond,
	}
	b.logger.Debug("synthesized", "bytes", len(data), "duration", clip.Duration, "took", time.Since(start))
	return clip, nil
}

// Close releases backend resources.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func parseFormat(s string) audio.Format {
	switch s {
	case "float32":
		return audio.FormatFloat32
	case "mp3":
		return audio.FormatMP3
	default:
		return audio.FormatPCM16
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
