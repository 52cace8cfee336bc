// Package main provides the entry point for the narrator CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/francktshibala/bookbridge-narrator/narrate"
	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend/local"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend/mock"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend/remote"
	"github.com/francktshibala/bookbridge-narrator/narrate/backend/stream"
	"github.com/francktshibala/bookbridge-narrator/narrate/cache"
	"github.com/francktshibala/bookbridge-narrator/narrate/chunk"
	"github.com/francktshibala/bookbridge-narrator/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	backendName  string
	voice        string
	rate         float64
	noHighlight  bool
	debug        bool
	plainOutput  bool

	rootCmd = &cobra.Command{
		Use:   "narrator [SOURCE]",
		Short: "Read text aloud in the terminal, word by word",
		Long: paragraph(fmt.Sprintf(
			"\nNarrate a text file %s: the spoken word is highlighted as the audio plays.",
			keyword("out loud"))),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source provides readable narration text.
type source struct {
	reader io.ReadCloser
	URL    string
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(arg string) (*source, error) {
	// from stdin
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}

	// HTTP(S) URLs:
	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "" {
			if u.Scheme != "http" && u.Scheme != "https" {
				return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
			}
			// consumer of the source is responsible for closing the ReadCloser.
			resp, err := http.Get(u.String()) //nolint: noctx,bodyclose
			if err != nil {
				return nil, fmt.Errorf("unable to get url: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
			}
			return &source{resp.Body, u.String()}, nil
		}
	}

	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	u, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, u}, nil
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("backend") {
		viper.Set("narration.backend", backendName)
	}
	if cmd.Flags().Changed("voice") {
		viper.Set("narration.voice", voice)
	}
	if cmd.Flags().Changed("rate") {
		viper.Set("narration.rate", rate)
	}
	if cmd.Flags().Changed("no-highlight") {
		viper.Set("narration.highlight_enabled", !noHighlight)
	}
	if cmd.Flags().Changed("debug") {
		viper.Set("narration.debug", debug)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	var src *source
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes {
		src = &source{reader: os.Stdin}
	} else if len(args) == 1 {
		s, err := sourceFromArg(args[0])
		if err != nil {
			return err
		}
		src = s
	} else {
		return errors.New("missing narration source: pass a file, a URL, or pipe text in")
	}
	defer src.reader.Close() //nolint:errcheck

	b, err := io.ReadAll(src.reader)
	if err != nil {
		return fmt.Errorf("unable to read source: %w", err)
	}
	text := string(b)
	if strings.TrimSpace(text) == "" {
		return errors.New("source contains no narratable text")
	}

	cfg, err := narrate.LoadConfigFromViper()
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// Pick up config edits made while narration runs; only logging
	// verbosity applies mid-session, the rest affects the next run.
	if path := viper.ConfigFileUsed(); path != "" {
		w, err := narrate.NewConfigWatcher(path, cfg, func(_, updated narrate.Config) {
			if updated.Debug {
				log.SetLevel(log.DebugLevel)
			}
		})
		if err != nil {
			log.Warn("config watch unavailable", "err", err)
		} else {
			defer w.Stop()
		}
	}

	return runNarration(cfg, text, titleFor(src))
}

func titleFor(src *source) string {
	if src.URL == "" {
		return "stdin"
	}
	return filepath.Base(src.URL)
}

// newBackend builds the configured speech backend.
func newBackend(cfg narrate.Config) (backend.Backend, error) {
	switch cfg.Backend {
	case "local":
		return local.New(local.Config{
			Binary:  cfg.Local.Binary,
			Model:   cfg.Local.Model,
			Timeout: cfg.Local.Timeout,
		})
	case "remote":
		return remote.New(remote.Config{
			URL:     cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.Timeout,
		})
	case "stream":
		return stream.New(stream.Config{
			URL:     cfg.Stream.URL,
			APIKey:  cfg.Stream.APIKey,
			Timeout: cfg.Stream.Timeout,
		})
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", narrate.ErrInvalidConfig, cfg.Backend)
	}
}

func runNarration(cfg narrate.Config, text, title string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if plainOutput || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlain(cfg, text)
	}
	return runTUI(cfg, text, title)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&backendName, "backend", "b", "", "speech backend (local/remote/stream/mock)")
	rootCmd.Flags().StringVar(&voice, "voice", "", "voice identifier for the backend")
	rootCmd.Flags().Float64VarP(&rate, "rate", "r", 1.0, "speech rate multiplier")
	rootCmd.Flags().BoolVar(&noHighlight, "no-highlight", false, "narrate without word highlighting")
	rootCmd.Flags().BoolVar(&plainOutput, "plain", false, "no TUI: print progress to stdout instead")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "verbose logging")

	_ = viper.BindPFlag("narration.backend", rootCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("narration.voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("narration.rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("narration.debug", rootCmd.Flags().Lookup("debug"))

	viper.SetDefault("narration.backend", "local")
	viper.SetDefault("narration.rate", 1.0)
	viper.SetDefault("narration.highlight_enabled", true)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "narrator")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find the configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "narrator")}, dirs...)
	}

	if c := os.Getenv("NARRATOR_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("narrator")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("narrator")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "narrator.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// terminalWidth reports the stdout width, clamped for readability.
func terminalWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	if w > 120 {
		return 120
	}
	return w
}

// runTUI runs the reader program wired to the chunk controller.
func runTUI(cfg narrate.Config, text, title string) error {
	b, err := newBackend(cfg)
	if err != nil {
		return err
	}

	player, err := audio.NewSystemPlayer()
	if err != nil {
		b.Close()
		return fmt.Errorf("unable to open audio output: %w", err)
	}

	var audioCache *cache.AudioCache
	if cfg.CacheBytes > 0 {
		audioCache = cache.New(cfg.CacheBytes)
	}

	manager := narrate.NewManager()

	var program *tea.Program
	ctrl := chunk.NewController(b, manager, player, audioCache, chunk.Options{
		Voice:            cfg.Voice,
		Rate:             cfg.Rate,
		HighlightEnabled: cfg.HighlightEnabled,
		ChunkPause:       cfg.ChunkPause,
		Prefetch:         cfg.PrefetchAhead,
	}, chunk.Callbacks{
		OnChunkStart: func(chunkIdx, total, words int) {
			program.Send(narrate.NarrationStartedMsg{Chunk: chunkIdx, Total: total, Words: words})
		},
		OnHighlight: func(chunkIdx, word int, text string) {
			program.Send(narrate.WordHighlightedMsg{Chunk: chunkIdx, Index: word, Word: text})
		},
		OnPaused: func(pos time.Duration, chunkIdx int) {
			program.Send(narrate.NarrationPausedMsg{Position: pos, Chunk: chunkIdx})
		},
		OnResumed: func(pos time.Duration, chunkIdx int) {
			program.Send(narrate.NarrationResumedMsg{Position: pos, Chunk: chunkIdx})
		},
		OnEnded: func(reason string) {
			program.Send(narrate.NarrationEndedMsg{Reason: reason})
		},
		OnError: func(err error) {
			program.Send(narrate.NarrationErrorMsg{Err: err, Component: "backend"})
		},
	})
	defer ctrl.Close() //nolint:errcheck

	reader := ui.NewReader(ui.ReaderConfig{
		Title:          title,
		BackendName:    b.Name(),
		HighlightColor: cfg.HighlightColor,
		ChunkLimit:     b.Capabilities().MaxTextLength,
	}, ctrl, text)

	program = tea.NewProgram(reader, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// runPlain narrates without the TUI, printing each spoken word. Used when
// stdout is not a terminal or with --plain.
func runPlain(cfg narrate.Config, text string) error {
	b, err := newBackend(cfg)
	if err != nil {
		return err
	}

	player, err := audio.NewSystemPlayer()
	if err != nil {
		b.Close()
		return fmt.Errorf("unable to open audio output: %w", err)
	}

	var audioCache *cache.AudioCache
	if cfg.CacheBytes > 0 {
		audioCache = cache.New(cfg.CacheBytes)
	}

	done := make(chan string, 1)
	var failure error

	width := terminalWidth()
	col := 0
	ctrl := chunk.NewController(b, narrate.NewManager(), player, audioCache, chunk.Options{
		Voice:            cfg.Voice,
		Rate:             cfg.Rate,
		HighlightEnabled: cfg.HighlightEnabled,
		ChunkPause:       cfg.ChunkPause,
		Prefetch:         cfg.PrefetchAhead,
	}, chunk.Callbacks{
		OnHighlight: func(_, _ int, word string) {
			if col+len(word)+1 > width {
				fmt.Println()
				col = 0
			}
			fmt.Print(word, " ")
			col += len(word) + 1
		},
		OnEnded: func(reason string) { done <- reason },
		OnError: func(err error) { failure = err },
	})
	defer ctrl.Close() //nolint:errcheck

	if err := ctrl.Play(context.Background(), text); err != nil {
		return err
	}
	reason := <-done
	fmt.Println()
	if reason == "error" && failure != nil {
		return failure
	}
	return nil
}
