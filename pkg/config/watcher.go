package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk and delivers
// the result on Updates. Only the newest config is kept; a consumer that
// lags sees the latest state, not a history.
type Watcher struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	updates chan Config

	mu sync.Mutex
}

// NewWatcher watches the directory containing path, so editors that
// replace the file on save still trigger a reload.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		logger:  logger,
		watcher: fsw,
		updates: make(chan Config, 1),
	}, nil
}

// Updates delivers each successfully reloaded config.
func (w *Watcher) Updates() <-chan Config { return w.updates }

// Run processes filesystem events until ctx is done. Rapid event bursts
// from editors collapse into a single reload.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config file changed", "file", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	for {
		select {
		case w.updates <- cfg:
			return
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}
