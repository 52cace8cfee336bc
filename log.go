package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// logEnv holds logging settings that only make sense as environment
// variables: they are debugging aids, not configuration.
type logEnv struct {
	LogFile string `env:"NARRATOR_LOGFILE"`
	Debug   bool   `env:"NARRATOR_DEBUG"`
}

// setupLog routes logging to the file named by NARRATOR_LOGFILE, or
// discards it. Log output cannot share the terminal with the reader UI.
// The returned closer must be called before exit.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.Kitchen)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if cfg.LogFile == "" {
		if !cfg.Debug {
			log.SetLevel(log.FatalLevel)
		}
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(f)
	return f.Close, nil
}
