package narrate

import (
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

// SessionState represents the lifecycle state of a highlighting session.
type SessionState int

const (
	// StateIdle indicates no session activity.
	StateIdle SessionState = iota
	// StateAwaitingAudio indicates the session exists but audible
	// playback has not begun.
	StateAwaitingAudio
	// StatePlaying indicates audio is playing and highlighting is armed.
	StatePlaying
	// StateEnded indicates the session has completed, failed, or been
	// stopped. Terminal.
	StateEnded
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAudio:
		return "awaiting-audio"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// sessionTransitions lists the allowed lifecycle transitions. Stop moves
// any non-idle state directly to ended, which is why ended is reachable
// from both awaiting-audio and playing.
var sessionTransitions = map[SessionState][]SessionState{
	StateIdle:          {StateAwaitingAudio},
	StateAwaitingAudio: {StatePlaying, StateEnded},
	StatePlaying:       {StateEnded},
	StateEnded:         {},
}

// session is the active synchronization context for one chunk of text.
// All fields are guarded by the owning Manager's mutex.
type session struct {
	id       string
	provider backend.Provider

	tokens  []Token
	offsets []int // token start offsets in the sanitized text

	state     SessionState
	lastIndex int // last index emitted to the callback, -1 before any

	strategy  syncStrategy
	highlight bool

	onHighlight func(wordIndex int)
	onError     func(err error)
}

// transition moves the session to the given state if the lifecycle allows
// it and reports whether the move happened.
func (s *session) transition(to SessionState) bool {
	for _, allowed := range sessionTransitions[s.state] {
		if allowed == to {
			s.state = to
			return true
		}
	}
	return false
}

// active reports whether the session may still receive events.
func (s *session) active() bool {
	return s.state == StateAwaitingAudio || s.state == StatePlaying
}
