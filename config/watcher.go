package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a Loader's base path for file changes and hot-reloads
// Settings, notifying registered callbacks. Intended for long-lived
// processes that want to pick up credential or retry-policy changes
// without a restart; short-lived CLI usage has no need for it.
type Watcher struct {
	loader    *Loader
	current   Settings
	callbacks []func(Settings)
	mu        sync.RWMutex
	logger    *zap.Logger
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
}

// NewWatcher starts watching loader's base path for *.yaml changes,
// debouncing reloads and invoking registered callbacks on change.
func NewWatcher(loader *Loader, initial Settings, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}

	if err := fsWatcher.Add(loader.basePath); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", loader.basePath, err)
	}

	w := &Watcher{
		loader:    loader,
		current:   initial,
		logger:    logger,
		fsWatcher: fsWatcher,
		stopCh:    make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.fsWatcher.Close()

	var debounce *time.Timer
	const debounceDelay = 300 * time.Millisecond

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error("config reload failed validation", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = next
	callbacks := make([]func(Settings), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.Strings("sources", next.LoadedFrom))
	for _, cb := range callbacks {
		go func(cb func(Settings)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config change callback panicked", zap.Any("panic", r))
				}
			}()
			cb(next)
		}(cb)
	}
}

// OnChange registers a callback invoked (in its own goroutine) after each
// successful reload.
func (w *Watcher) OnChange(cb func(Settings)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current returns the most recently loaded Settings.
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop stops watching and releases the underlying file-system watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
