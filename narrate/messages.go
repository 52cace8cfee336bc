package narrate

import (
	"time"
)

// Messages for Bubble Tea communication between narration and UI.

// NarrationStartedMsg indicates playback of a chunk has started.
type NarrationStartedMsg struct {
	Chunk    int           // Current chunk index
	Total    int           // Total number of chunks
	Words    int           // Word count of the current chunk
	Duration time.Duration // Audio duration of the current chunk, if known
}

// WordHighlightedMsg indicates the highlighted word has moved.
type WordHighlightedMsg struct {
	Chunk int // Chunk the word belongs to
	Index int // Word index within the chunk
	Word  string
}

// NarrationPausedMsg indicates playback has been paused.
type NarrationPausedMsg struct {
	Position time.Duration // Position when paused
	Chunk    int
}

// NarrationResumedMsg indicates playback has resumed.
type NarrationResumedMsg struct {
	Position time.Duration
	Chunk    int
}

// NarrationEndedMsg indicates playback has finished.
type NarrationEndedMsg struct {
	Reason string // Reason for ending (user, complete, error)
}

// NarrationErrorMsg indicates an error occurred during narration.
type NarrationErrorMsg struct {
	Err         error
	Recoverable bool
	Component   string // Which component had the error (backend, player, chunker)
}
