package narrate

import "errors"

// Common errors for the narration system.
var (
	// ErrEmptyText is returned when a text sanitizes to zero tokens.
	ErrEmptyText = errors.New("no narratable text")

	// ErrUnknownSession is returned for operations on a session id that
	// does not exist or has already been released.
	ErrUnknownSession = errors.New("unknown or expired session")

	// ErrSessionEnded is returned for operations that require an active
	// session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSessionSuperseded is returned when a session is no longer the
	// authoritative one for its playback surface.
	ErrSessionSuperseded = errors.New("session superseded by a newer session")

	// ErrNoDuration indicates a batch backend reported no usable audio
	// duration, so no per-word timing can be estimated.
	ErrNoDuration = errors.New("backend reported no usable audio duration")

	// ErrInvalidTransition indicates a session state transition that the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrBackendUnavailable indicates the selected speech backend cannot
	// be used.
	ErrBackendUnavailable = errors.New("speech backend is not available")

	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)
