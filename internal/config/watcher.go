package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback receives every successfully reloaded and validated config.
type ReloadCallback func(cfg *Config)

// Watcher reloads the config file whenever it changes on disk. Editors
// often replace the file instead of writing it, so the parent directory is
// watched and events are filtered by name.
type Watcher struct {
	watcher    *fsnotify.Watcher
	loader     *Loader
	path       string
	onReload   ReloadCallback
	debounce   time.Duration
	done       chan struct{}
	timerMu    sync.Mutex
	timer      *time.Timer
	stopOnce   sync.Once
	loopExited chan struct{}
}

// NewWatcher prepares a watcher for path. debounce <= 0 selects 100ms.
func NewWatcher(path string, debounce time.Duration, onReload ReloadCallback) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if onReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return &Watcher{
		watcher:    fw,
		loader:     NewLoader(abs),
		path:       abs,
		onReload:   onReload,
		debounce:   debounce,
		done:       make(chan struct{}),
		loopExited: make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.path).Msg("Config watcher started")
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		<-w.loopExited
		log.Info().Msg("Config watcher stopped")
	})
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.loopExited)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Ignoring unreadable config change")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid config change")
		return
	}
	log.Debug().Str("path", w.path).Msg("Config reloaded")
	w.onReload(cfg)
}
