package narrate

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

// syncStrategy maps backend timing signals onto token indices. One strategy
// is selected per session at creation time based on the provider kind,
// replacing per-event dispatch on provider identity.
type syncStrategy interface {
	// arm is called once audible playback has begun. The duration is the
	// backend-reported total audio length, zero when unknown.
	arm(d time.Duration) error

	// mapEvent converts a boundary event into a candidate token index.
	// The second return value is false when the event carries no index
	// for this strategy.
	mapEvent(ev backend.Event) (int, bool)

	// stop quiesces any timers. Idempotent; must not block on goroutines
	// that may be calling back into the manager.
	stop()
}

func strategyFor(p backend.Provider, s *session, deliver func(index int)) syncStrategy {
	switch p {
	case backend.ProviderRemoteBatch:
		return &estimatedTimerStrategy{
			tokenCount: len(s.tokens),
			deliver:    deliver,
			stopCh:     make(chan struct{}),
		}
	case backend.ProviderRemoteStreaming:
		return &streamingPositionStrategy{offsets: s.offsets}
	default:
		return localBoundaryStrategy{}
	}
}

// localBoundaryStrategy relies entirely on discrete per-word boundary
// events from the backend. No timer is needed.
type localBoundaryStrategy struct{}

func (localBoundaryStrategy) arm(time.Duration) error { return nil }

func (localBoundaryStrategy) mapEvent(ev backend.Event) (int, bool) {
	if ev.Kind != backend.EventWordBoundary {
		return 0, false
	}
	return ev.WordIndex, true
}

func (localBoundaryStrategy) stop() {}

// streamingPositionStrategy maps raw character offsets from a streaming
// backend to token indices via prefix sums computed at session start. The
// backend supplies authoritative positions, so no timer is used.
type streamingPositionStrategy struct {
	offsets []int
}

func (*streamingPositionStrategy) arm(time.Duration) error { return nil }

func (s *streamingPositionStrategy) mapEvent(ev backend.Event) (int, bool) {
	if ev.Kind != backend.EventCharBoundary {
		return 0, false
	}
	idx := tokenAtOffset(s.offsets, ev.CharOffset)
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

func (*streamingPositionStrategy) stop() {}

// estimatedTimerStrategy approximates word timing for backends with no
// native boundary events: total audio duration divided by token count gives
// a per-word interval, and a ticker advances the index once per interval.
// Best effort; ticks drift relative to actual audio elapsed time.
type estimatedTimerStrategy struct {
	tokenCount int
	deliver    func(index int)

	stopOnce sync.Once
	stopCh   chan struct{}
}

func (s *estimatedTimerStrategy) arm(d time.Duration) error {
	if s.tokenCount == 0 {
		return ErrEmptyText
	}
	if d <= 0 {
		return ErrNoDuration
	}

	interval := d / time.Duration(s.tokenCount)
	if interval <= 0 {
		interval = time.Millisecond
	}

	// First word highlights as soon as audio starts.
	s.deliver(0)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		next := 1
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if next >= s.tokenCount {
					return
				}
				s.deliver(next)
				next++
			}
		}
	}()

	log.Debug("estimated timer armed", "tokens", s.tokenCount, "interval", interval)
	return nil
}

func (s *estimatedTimerStrategy) mapEvent(backend.Event) (int, bool) {
	// Batch backends produce no boundary events; anything arriving here
	// is noise.
	return 0, false
}

func (s *estimatedTimerStrategy) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
