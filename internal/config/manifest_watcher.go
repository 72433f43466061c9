package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/moolen/hearth/internal/logging"
)

// DefaultDebounceMillis is used when ManifestWatcherConfig.DebounceMillis is zero.
const DefaultDebounceMillis = 500

// ReloadCallback receives every successfully loaded manifest. A returned
// error is logged and the watcher keeps running.
type ReloadCallback func(manifest *ModulesFile) error

// ManifestWatcherConfig holds configuration for the ManifestWatcher.
type ManifestWatcherConfig struct {
	// FilePath is the module manifest to watch
	FilePath string

	// DebounceMillis coalesces change events from editor save sequences
	DebounceMillis int
}

// ManifestWatcher watches a module manifest and invokes a callback with each
// valid revision. Invalid revisions are logged and the previous one stays in
// effect.
type ManifestWatcher struct {
	config   ManifestWatcherConfig
	callback ReloadCallback
	logger   *logging.Logger
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{}
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewManifestWatcher creates a watcher for the given manifest.
func NewManifestWatcher(config ManifestWatcherConfig, callback ReloadCallback) (*ManifestWatcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config.DebounceMillis == 0 {
		config.DebounceMillis = DefaultDebounceMillis
	}

	return &ManifestWatcher{
		config:   config,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start loads the manifest, hands it to the callback and then watches the
// file until Stop is called or ctx is cancelled. It returns once the
// underlying fsnotify watch is in place.
func (w *ManifestWatcher) Start(ctx context.Context) error {
	initial, err := LoadModulesFile(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial manifest: %w", err)
	}

	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	w.logger.Info("Loaded initial manifest from %s", w.config.FilePath)

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
	return nil
}

func (w *ManifestWatcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *ManifestWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("Failed to watch %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Debug("Watching %s for changes (debounce: %dms)", w.config.FilePath, w.config.DebounceMillis)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// atomic writes replace the inode, so the watch must be re-added
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.handleFileChange(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *ManifestWatcher) handleFileChange(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		func() { w.reload(ctx) },
	)
}

func (w *ManifestWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}

func (w *ManifestWatcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	manifest, err := LoadModulesFile(w.config.FilePath)
	if err != nil {
		w.logger.Warn("Ignoring manifest change (keeping previous revision): %v", err)
		return
	}

	if err := w.callback(manifest); err != nil {
		w.logger.ErrorWithErr("Manifest reload callback failed", err)
		return
	}
	w.logger.Info("Reloaded manifest from %s", w.config.FilePath)
}

// Stop ends the watch loop and waits up to five seconds for it to exit.
func (w *ManifestWatcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
