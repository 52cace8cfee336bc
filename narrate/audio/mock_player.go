package audio

import (
	"errors"
	"sync"
	"time"
)

// MockPlayer implements Player for testing. Position is controlled
// manually via SetPosition instead of advancing in real time, which lets
// synchronization tests run deterministically.
type MockPlayer struct {
	mu sync.RWMutex

	current  *Audio
	position time.Duration
	playing  bool
	paused   bool
	closed   bool

	// Call counters for assertions
	playCalls  int
	stopCalls  int
	pauseCalls int
}

// NewMockPlayer creates a new mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play starts "playing" the given audio.
func (p *MockPlayer) Play(a *Audio) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("player closed")
	}
	if a == nil {
		return errors.New("no audio to play")
	}

	p.current = a
	p.position = 0
	p.playing = true
	p.paused = false
	p.playCalls++
	return nil
}

// Pause temporarily stops playback.
func (p *MockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.paused {
		return errors.New("not playing")
	}
	p.paused = true
	p.pauseCalls++
	return nil
}

// Resume continues playback.
func (p *MockPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return errors.New("not paused")
	}
	p.paused = false
	return nil
}

// Stop halts playback and resets position.
func (p *MockPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = false
	p.paused = false
	p.position = 0
	p.current = nil
	p.stopCalls++
	return nil
}

// Position returns the manually set playback position.
func (p *MockPlayer) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// SetPosition moves the simulated playback position.
func (p *MockPlayer) SetPosition(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = d
}

// IsPlaying returns true while playing and not paused.
func (p *MockPlayer) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing && !p.paused
}

// Close releases the player.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.playing = false
	return nil
}

// PlayCalls returns the number of Play invocations.
func (p *MockPlayer) PlayCalls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playCalls
}

// StopCalls returns the number of Stop invocations.
func (p *MockPlayer) StopCalls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopCalls
}
