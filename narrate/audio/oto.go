//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// SystemPlayer plays PCM audio through the platform audio device using oto.
type SystemPlayer struct {
	mu sync.Mutex

	context    *oto.Context
	sampleRate int

	player  *oto.Player
	current *Audio

	// Wall-clock position tracking
	startedAt time.Time
	elapsed   time.Duration
	playing   bool
	paused    bool
}

// NewSystemPlayer creates a player backed by the platform audio device.
// The audio context is created lazily on first Play since the sample rate
// is not known until then.
func NewSystemPlayer() (*SystemPlayer, error) {
	return &SystemPlayer{}, nil
}

// ensureContext initializes (or reinitializes) the oto context for the
// given sample rate. oto contexts are process-wide; changing the sample
// rate requires a new one.
func (p *SystemPlayer) ensureContext(sampleRate, channels int) error {
	if p.context != nil && p.sampleRate == sampleRate {
		return nil
	}
	if p.context != nil {
		// oto v3 contexts have no Close; the old one is abandoned.
		log.Debug("recreating audio context", "old_rate", p.sampleRate, "new_rate", sampleRate)
	}

	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	context, ready, err := oto.NewContext(options)
	if err != nil {
		return fmt.Errorf("audio context init: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		return errors.New("audio context init: device not ready")
	}

	p.context = context
	p.sampleRate = sampleRate
	return nil
}

// Play starts playing the given audio from the beginning.
func (p *SystemPlayer) Play(a *Audio) error {
	if a == nil || len(a.Data) == 0 {
		return errors.New("no audio to play")
	}
	if a.Format != FormatPCM16 {
		return fmt.Errorf("unsupported playback format %q", a.Format)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player != nil {
		p.player.Close()
		p.player = nil
	}

	channels := a.Channels
	if channels == 0 {
		channels = 1
	}
	if err := p.ensureContext(a.SampleRate, channels); err != nil {
		return err
	}

	p.player = p.context.NewPlayer(bytes.NewReader(a.Data))
	p.player.Play()

	p.current = a
	p.startedAt = time.Now()
	p.elapsed = 0
	p.playing = true
	p.paused = false
	return nil
}

// Pause temporarily stops playback.
func (p *SystemPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.paused {
		return errors.New("not playing")
	}

	p.player.Pause()
	p.elapsed += time.Since(p.startedAt)
	p.paused = true
	return nil
}

// Resume continues playback from the paused position.
func (p *SystemPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return errors.New("not paused")
	}

	p.player.Play()
	p.startedAt = time.Now()
	p.paused = false
	return nil
}

// Stop halts playback and resets position.
func (p *SystemPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player != nil {
		p.player.Close()
		p.player = nil
	}
	p.playing = false
	p.paused = false
	p.elapsed = 0
	p.current = nil
	return nil
}

// Position returns the current playback position.
func (p *SystemPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return 0
	}
	pos := p.elapsed
	if !p.paused {
		pos += time.Since(p.startedAt)
	}
	if p.current != nil && pos > p.current.Duration {
		pos = p.current.Duration
	}
	return pos
}

// IsPlaying returns true while audio is audibly playing.
func (p *SystemPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.paused {
		return false
	}
	if p.player != nil && !p.player.IsPlaying() {
		return false
	}
	if p.current != nil && p.elapsed+time.Since(p.startedAt) >= p.current.Duration {
		return false
	}
	return true
}

// Close releases playback resources.
func (p *SystemPlayer) Close() error {
	return p.Stop()
}
