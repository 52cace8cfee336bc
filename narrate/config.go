package narrate

import (
	"fmt"
	"time"
)

// Config contains all narration configuration options. Defaults come from
// DefaultConfig, not from tags: the env pass runs on top of file and flag
// values, so an unset variable must leave its field alone.
type Config struct {
	// Backend selection: local, remote, stream, or mock.
	Backend string `yaml:"backend" env:"NARRATOR_BACKEND"`

	// Speech settings
	Voice string  `yaml:"voice" env:"NARRATOR_VOICE"`
	Rate  float64 `yaml:"rate" env:"NARRATOR_RATE"`

	// Highlighting settings
	HighlightEnabled bool   `yaml:"highlight_enabled" env:"NARRATOR_HIGHLIGHT_ENABLED"`
	HighlightColor   string `yaml:"highlight_color" env:"NARRATOR_HIGHLIGHT_COLOR"`

	// Chunked playback settings
	ChunkPause    time.Duration `yaml:"chunk_pause" env:"NARRATOR_CHUNK_PAUSE"`
	PrefetchAhead bool          `yaml:"prefetch_ahead" env:"NARRATOR_PREFETCH_AHEAD"`

	// Cache settings
	CacheBytes int64 `yaml:"cache_bytes" env:"NARRATOR_CACHE_BYTES"`

	// Diagnostics
	Debug bool `yaml:"debug" env:"NARRATOR_DEBUG"`

	// Backend-specific configurations
	Local  LocalConfig  `yaml:"local"`
	Remote RemoteConfig `yaml:"remote"`
	Stream StreamConfig `yaml:"stream"`
}

// LocalConfig contains local synthesis engine settings.
type LocalConfig struct {
	Binary  string        `yaml:"binary" env:"NARRATOR_LOCAL_BINARY"`
	Model   string        `yaml:"model" env:"NARRATOR_LOCAL_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"NARRATOR_LOCAL_TIMEOUT"`
}

// RemoteConfig contains batch HTTP synthesis settings.
type RemoteConfig struct {
	URL     string        `yaml:"url" env:"NARRATOR_REMOTE_URL"`
	APIKey  string        `yaml:"api_key" env:"NARRATOR_REMOTE_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"NARRATOR_REMOTE_TIMEOUT"`
}

// StreamConfig contains streaming WebSocket synthesis settings.
type StreamConfig struct {
	URL     string        `yaml:"url" env:"NARRATOR_STREAM_URL"`
	APIKey  string        `yaml:"api_key" env:"NARRATOR_STREAM_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"NARRATOR_STREAM_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          "local",
		Rate:             1.0,
		HighlightEnabled: true,
		HighlightColor:   "226",
		ChunkPause:       200 * time.Millisecond,
		PrefetchAhead:    true,
		CacheBytes:       32 << 20,
		Local: LocalConfig{
			Binary:  "piper",
			Model:   "en_US-lessac-medium",
			Timeout: 30 * time.Second,
		},
		Remote: RemoteConfig{Timeout: 15 * time.Second},
		Stream: StreamConfig{Timeout: 30 * time.Second},
	}
}

// Validate checks configuration values.
func (c Config) Validate() error {
	switch c.Backend {
	case "local", "remote", "stream", "mock":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Rate < 0.1 || c.Rate > 3.0 {
		return fmt.Errorf("%w: rate must be between 0.1 and 3.0, got %.2f", ErrInvalidConfig, c.Rate)
	}
	if c.ChunkPause < 0 || c.ChunkPause > 5*time.Second {
		return fmt.Errorf("%w: chunk_pause must be between 0 and 5s, got %v", ErrInvalidConfig, c.ChunkPause)
	}
	if c.CacheBytes < 0 {
		return fmt.Errorf("%w: cache_bytes must not be negative", ErrInvalidConfig)
	}
	if c.Backend == "remote" && c.Remote.URL == "" {
		return fmt.Errorf("%w: remote backend needs remote.url", ErrInvalidConfig)
	}
	if c.Backend == "stream" && c.Stream.URL == "" {
		return fmt.Errorf("%w: stream backend needs stream.url", ErrInvalidConfig)
	}
	return nil
}
