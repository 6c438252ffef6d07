package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounceInterval coalesces the burst of filesystem events editors
// produce on save into one reload.
const defaultDebounceInterval = 100 * time.Millisecond

// Watcher watches the configuration file and reloads it on change. Only a
// config that loads and validates cleanly is handed to the callback; a broken
// edit leaves the running config untouched.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		debounce: defaultDebounceInterval,
		watcher:  fsw,
		logger:   slog.Default().With("component", "config.watcher"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until the context is cancelled or Stop is called, invoking
// onReload with each successfully reloaded configuration.
//
// The parent directory is watched rather than the file itself: editors and
// orchestrators typically replace config files atomically (write-temp +
// rename), which drops the watch on the original inode.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("config watcher started", "path", w.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		w.watcher.Close()
	}()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil
		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.reload(onReload)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Stop halts the watch loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

func (w *Watcher) reload(onReload func(*Config)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	onReload(cfg)
}
