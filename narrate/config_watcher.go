package narrate

import (
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigWatcher monitors the config file and calls a callback with the
// freshly loaded config when it changes. Only presentation-level settings
// (highlight color, chunk pause) take effect mid-session; backend changes
// apply to the next playback.
type ConfigWatcher struct {
	path     string
	onChange func(old, new Config)

	mu      sync.Mutex
	current Config

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewConfigWatcher starts watching the given config file. The initial
// config must be supplied by the caller (it has already been loaded once
// through Viper at startup).
func NewConfigWatcher(path string, initial Config, onChange func(old, new Config)) (*ConfigWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file: editors replace config
	// files by rename, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		path:     path,
		onChange: onChange,
		current:  initial,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *ConfigWatcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching. Idempotent.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *ConfigWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watch error", "err", err)
		}
	}
}

func (w *ConfigWatcher) reload() {
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("config reload skipped", "err", err)
		return
	}
	cfg, err := LoadConfigFromViper()
	if err != nil {
		// Keep the last valid config; a half-saved file is not fatal.
		log.Warn("config reload skipped", "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	cb := w.onChange
	w.mu.Unlock()

	log.Debug("config reloaded", "path", w.path)
	if cb != nil {
		cb(old, cfg)
	}
}
