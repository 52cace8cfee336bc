// Package audio provides audio playback for narration.
package audio

import (
	"time"
)

// Format represents the encoding of audio data.
type Format int

const (
	// FormatPCM16 represents 16-bit little-endian PCM audio.
	FormatPCM16 Format = iota
	// FormatFloat32 represents 32-bit float PCM audio.
	FormatFloat32
	// FormatMP3 represents MP3 compressed audio.
	FormatMP3
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatPCM16:
		return "pcm16"
	case FormatFloat32:
		return "float32"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Audio holds one synthesized audio asset.
type Audio struct {
	Data       []byte        // Raw audio data
	Format     Format        // Encoding of Data
	SampleRate int           // Sample rate in Hz
	Channels   int           // Number of channels
	Duration   time.Duration // Playback duration
}

// Size returns the payload size in bytes.
func (a *Audio) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// Player defines the interface for audio playback.
type Player interface {
	// Play starts playing the given audio from the beginning.
	Play(a *Audio) error

	// Pause temporarily stops playback.
	Pause() error

	// Resume continues playback from the paused position.
	Resume() error

	// Stop halts playback and resets position.
	Stop() error

	// Position returns the current playback position.
	Position() time.Duration

	// IsPlaying returns true while audio is audibly playing.
	IsPlaying() bool

	// Close releases playback resources.
	Close() error
}
