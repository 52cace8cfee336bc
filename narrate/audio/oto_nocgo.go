//go:build nocgo
// +build nocgo

package audio

import (
	"errors"
	"sync"
	"time"
)

// SystemPlayer is a silent stand-in used for builds without audio device
// support. It tracks playback position by wall clock so highlighting still
// advances, but produces no sound.
type SystemPlayer struct {
	mu sync.Mutex

	current   *Audio
	startedAt time.Time
	elapsed   time.Duration
	playing   bool
	paused    bool
}

// NewSystemPlayer creates the silent fallback player.
func NewSystemPlayer() (*SystemPlayer, error) {
	return &SystemPlayer{}, nil
}

// Play starts tracking playback of the given audio.
func (p *SystemPlayer) Play(a *Audio) error {
	if a == nil || len(a.Data) == 0 {
		return errors.New("no audio to play")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = a
	p.startedAt = time.Now()
	p.elapsed = 0
	p.playing = true
	p.paused = false
	return nil
}

// Pause temporarily stops the playback clock.
func (p *SystemPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.paused {
		return errors.New("not playing")
	}
	p.elapsed += time.Since(p.startedAt)
	p.paused = true
	return nil
}

// Resume continues the playback clock.
func (p *SystemPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return errors.New("not paused")
	}
	p.startedAt = time.Now()
	p.paused = false
	return nil
}

// Stop halts playback tracking and resets position.
func (p *SystemPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

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

// IsPlaying returns true while the playback clock is running.
func (p *SystemPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.paused {
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
