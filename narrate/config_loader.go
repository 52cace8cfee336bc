package narrate

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads narration configuration from Viper, falling
// back to defaults for unset keys. NARRATOR_* environment variables are
// applied last and override file and flag values.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("narration.backend") {
		cfg.Backend = viper.GetString("narration.backend")
	}
	if viper.IsSet("narration.voice") {
		cfg.Voice = viper.GetString("narration.voice")
	}
	if viper.IsSet("narration.rate") {
		cfg.Rate = viper.GetFloat64("narration.rate")
	}
	if viper.IsSet("narration.highlight_enabled") {
		cfg.HighlightEnabled = viper.GetBool("narration.highlight_enabled")
	}
	if viper.IsSet("narration.highlight_color") {
		cfg.HighlightColor = viper.GetString("narration.highlight_color")
	}
	if viper.IsSet("narration.chunk_pause") {
		cfg.ChunkPause = viper.GetDuration("narration.chunk_pause")
	}
	if viper.IsSet("narration.prefetch_ahead") {
		cfg.PrefetchAhead = viper.GetBool("narration.prefetch_ahead")
	}
	if viper.IsSet("narration.cache_bytes") {
		cfg.CacheBytes = viper.GetInt64("narration.cache_bytes")
	}
	if viper.IsSet("narration.debug") {
		cfg.Debug = viper.GetBool("narration.debug")
	}

	// Local engine
	if viper.IsSet("narration.local.binary") {
		cfg.Local.Binary = viper.GetString("narration.local.binary")
	}
	if viper.IsSet("narration.local.model") {
		cfg.Local.Model = viper.GetString("narration.local.model")
	}
	if viper.IsSet("narration.local.timeout") {
		cfg.Local.Timeout = viper.GetDuration("narration.local.timeout")
	}

	// Remote batch engine
	if viper.IsSet("narration.remote.url") {
		cfg.Remote.URL = viper.GetString("narration.remote.url")
	}
	if viper.IsSet("narration.remote.api_key") {
		cfg.Remote.APIKey = viper.GetString("narration.remote.api_key")
	}
	if viper.IsSet("narration.remote.timeout") {
		cfg.Remote.Timeout = viper.GetDuration("narration.remote.timeout")
	}

	// Streaming engine
	if viper.IsSet("narration.stream.url") {
		cfg.Stream.URL = viper.GetString("narration.stream.url")
	}
	if viper.IsSet("narration.stream.api_key") {
		cfg.Stream.APIKey = viper.GetString("narration.stream.api_key")
	}
	if viper.IsSet("narration.stream.timeout") {
		cfg.Stream.Timeout = viper.GetDuration("narration.stream.timeout")
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing narration environment: %w", err)
	}

	if cfg.Local.Timeout == 0 {
		cfg.Local.Timeout = 30 * time.Second
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 15 * time.Second
	}
	if cfg.Stream.Timeout == 0 {
		cfg.Stream.Timeout = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
