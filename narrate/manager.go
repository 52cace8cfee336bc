package narrate

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

// SessionConfig configures one highlighting session.
type SessionConfig struct {
	// Provider selects the synchronization strategy.
	Provider backend.Provider

	// Text is the narration text. The manager sanitizes it itself so the
	// token stream and the string handed to the backend cannot diverge;
	// use SanitizedText after Start to obtain the exact string to speak.
	Text string

	// EnableHighlighting gates callback delivery. A disabled session
	// still tracks lifecycle state.
	EnableHighlighting bool

	// OnWordHighlight receives monotonically non-decreasing token
	// indices while the session plays. Must be fast and must not call
	// back into the Manager.
	OnWordHighlight func(wordIndex int)

	// OnError receives asynchronous failures. May be nil.
	OnError func(err error)
}

// Manager owns highlighting sessions and maps backend timing signals onto
// token indices. At most one session drives highlighting at a time;
// starting a new session supersedes the previous one, and events tagged
// with a superseded session id are ignored rather than merely stopped.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	activeID string

	logger *log.Logger

	// Out-of-range and stale boundary events are expected transient noise
	// from imperfect backend timing; their diagnostics are rate limited
	// so a misbehaving backend cannot flood the log.
	dropLog *rate.Limiter
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		logger:   log.Default().WithPrefix("narrate"),
		dropLog:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Start creates a new session for the given text and returns its id
// immediately; actual audio start is asynchronous and reported later via
// StartHighlighting. Any previously active session is ended first.
func (m *Manager) Start(cfg SessionConfig) (string, error) {
	tokens := Tokenize(cfg.Text)
	if len(tokens) == 0 {
		return "", ErrEmptyText
	}

	m.mu.Lock()

	// Always supersede any existing session before starting a new one.
	if prev, ok := m.sessions[m.activeID]; ok && prev.active() {
		m.endLocked(prev)
	}

	s := &session{
		id:          uuid.NewString(),
		provider:    cfg.Provider,
		tokens:      tokens,
		offsets:     tokenOffsets(tokens),
		state:       StateAwaitingAudio,
		lastIndex:   -1,
		highlight:   cfg.EnableHighlighting,
		onHighlight: cfg.OnWordHighlight,
		onError:     cfg.OnError,
	}
	s.strategy = strategyFor(cfg.Provider, s, func(idx int) {
		m.deliver(s.id, idx, false)
	})

	m.sessions[s.id] = s
	m.activeID = s.id
	m.mu.Unlock()

	m.logger.Debug("session started", "session", s.id, "provider", cfg.Provider, "tokens", len(tokens))
	return s.id, nil
}

// SanitizedText returns the exact sanitized string the session tokenized,
// the string that must be handed to the speech backend.
func (m *Manager) SanitizedText(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return "", ErrUnknownSession
	}
	parts := make([]string, len(s.tokens))
	for i, t := range s.tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " "), nil
}

// StartHighlighting transitions the session to playing once the backend
// has actually begun producing sound, and arms the synchronization
// strategy. The duration is the backend-reported audio length; batch
// providers need it to estimate per-word timing, the others ignore it.
//
// A batch provider reporting no usable duration is not an error: the
// session plays with highlighting pinned at -1 and a warning is logged
// rather than guessing at timing.
func (m *Manager) StartHighlighting(id string, audioDuration time.Duration) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("start highlighting on unknown session", "session", id)
		return ErrUnknownSession
	}
	if id != m.activeID {
		m.mu.Unlock()
		return fmt.Errorf("start highlighting: %w", ErrSessionSuperseded)
	}
	if s.state == StateEnded {
		m.mu.Unlock()
		return fmt.Errorf("start highlighting: %w", ErrSessionEnded)
	}
	if !s.transition(StatePlaying) {
		m.mu.Unlock()
		return fmt.Errorf("start highlighting from %s: %w", s.state, ErrInvalidTransition)
	}
	strategy := s.strategy
	enabled := s.highlight
	m.mu.Unlock()

	if !enabled {
		return nil
	}

	// Armed outside the lock: the timer strategy delivers index 0
	// synchronously and delivery takes the lock.
	if err := strategy.arm(audioDuration); err != nil {
		m.logger.Warn("highlighting not armed", "session", id, "err", err)
	}
	return nil
}

// HandleEvent routes one backend event to the session. This is the single
// consumption point for the typed event stream: boundary events map to
// indices, Ended stops the session, Error fails it.
func (m *Manager) HandleEvent(id string, ev backend.Event) {
	switch ev.Kind {
	case backend.EventStarted:
		// A Started event for a superseded session is ordinary pipeline
		// noise, not a failure worth reporting.
		if err := m.StartHighlighting(id, ev.Duration); err != nil && !errors.Is(err, ErrSessionSuperseded) {
			m.reportError(id, err)
		}
	case backend.EventWordBoundary, backend.EventCharBoundary:
		m.handleBoundary(id, ev)
	case backend.EventEnded:
		m.Stop(id)
	case backend.EventError:
		m.fail(id, ev.Err)
	}
}

// HandleWordBoundary processes a discrete word-boundary event from a
// local backend.
func (m *Manager) HandleWordBoundary(id string, wordIndex int) {
	m.handleBoundary(id, backend.Event{Kind: backend.EventWordBoundary, WordIndex: wordIndex})
}

// HandleStreamBoundary processes a raw character position emitted by a
// streaming backend, mapping it to the enclosing token index.
func (m *Manager) HandleStreamBoundary(id string, charOffset int) {
	m.handleBoundary(id, backend.Event{Kind: backend.EventCharBoundary, CharOffset: charOffset})
}

func (m *Manager) handleBoundary(id string, ev backend.Event) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || id != m.activeID || s.state != StatePlaying {
		m.mu.Unlock()
		if m.dropLog.Allow() {
			m.logger.Debug("boundary for inactive session dropped", "session", id, "kind", ev.Kind)
		}
		return
	}
	strategy := s.strategy
	m.mu.Unlock()

	idx, ok := strategy.mapEvent(ev)
	if !ok {
		return
	}

	// Word-boundary events legitimately repeat an index (a backend may
	// re-announce the current word); mapped character offsets repeat for
	// every position inside the same word, so those are deduplicated.
	allowRepeat := ev.Kind == backend.EventWordBoundary
	m.deliver(id, idx, allowRepeat)
}

// deliver emits one highlight index if the session is still the active
// one, still playing, and the index does not regress. Per-session
// emissions originate from a single goroutine (the event pump or the
// estimate ticker), so callback invocation order matches emission order.
func (m *Manager) deliver(id string, idx int, allowRepeat bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || id != m.activeID || s.state != StatePlaying || !s.highlight {
		m.mu.Unlock()
		if m.dropLog.Allow() {
			m.logger.Debug("stale highlight dropped", "session", id, "index", idx)
		}
		return
	}
	if idx < 0 || idx >= len(s.tokens) || idx < s.lastIndex || (idx == s.lastIndex && !allowRepeat) {
		m.mu.Unlock()
		if (idx < 0 || idx >= len(s.tokens) || idx < s.lastIndex) && m.dropLog.Allow() {
			m.logger.Debug("out-of-range boundary dropped", "session", id, "index", idx, "last", s.lastIndex)
		}
		return
	}
	s.lastIndex = idx
	cb := s.onHighlight
	m.mu.Unlock()

	if cb != nil {
		cb(idx)
	}
}

// Stop transitions the session to ended and quiesces its timers. It is
// idempotent and safe to call concurrently with in-flight boundary events:
// once ended, no further callbacks are delivered for this id even if
// events are still in flight.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("stop on unknown session", "session", id)
		return
	}
	if s.state == StateEnded {
		m.mu.Unlock()
		return
	}
	m.endLocked(s)
	m.mu.Unlock()

	m.logger.Debug("session stopped", "session", id, "last_index", s.lastIndex)
}

// EndSession stops the session if needed and releases all its resources.
// Unlike Stop, the id is invalid afterwards.
func (m *Manager) EndSession(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if s.state != StateEnded {
		m.endLocked(s)
	}
	delete(m.sessions, id)
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()
}

// endLocked transitions to ended and stops the strategy. Caller holds mu;
// strategy.stop is non-blocking so this cannot deadlock with a ticker
// goroutine waiting on the same mutex.
func (m *Manager) endLocked(s *session) {
	s.transition(StateEnded)
	if s.strategy != nil {
		s.strategy.stop()
	}
}

// fail ends the session and reports the error once via its OnError
// callback.
func (m *Manager) fail(id string, err error) {
	m.Stop(id)
	m.reportError(id, err)
	m.logger.Error("session failed", "session", id, "err", err)
}

func (m *Manager) reportError(id string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	var cb func(error)
	if s, ok := m.sessions[id]; ok {
		cb = s.onError
	}
	m.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// State returns the lifecycle state of a session. Unknown ids report
// StateIdle.
func (m *Manager) State(id string) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.state
	}
	return StateIdle
}

// LastHighlightedIndex returns the last emitted index for the session, -1
// before any emission or for unknown ids.
func (m *Manager) LastHighlightedIndex(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.lastIndex
	}
	return -1
}

// Tokens returns the session's token sequence.
func (m *Manager) Tokens(id string) []Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		out := make([]Token, len(s.tokens))
		copy(out, s.tokens)
		return out
	}
	return nil
}

// ActiveSessionID returns the id of the authoritative session, empty when
// none is active.
func (m *Manager) ActiveSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}
