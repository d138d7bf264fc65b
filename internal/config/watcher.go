package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/sync"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and hands
// the result to a callback. A file that fails to load keeps the previous
// configuration in effect.
type Watcher struct {
	path     string
	onReload func(*Config)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	cancel  context.CancelFunc
	timer   *time.Timer
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
	}
}

// Start begins watching the config file's directory. Watching the directory
// rather than the file keeps atomic-rename saves (vim, most editors) visible.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.path = absPath

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = w.Stop()
		return err
	}

	go w.eventLoop(watchCtx)

	log.Info().Str("path", w.path).Msg("config watcher started")
	return nil
}

// Stop terminates watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	if w.cancel != nil {
		w.cancel()
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		log.Info().Msg("config watcher stopped")
		return err
	}

	return nil
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", w.path).
			Msg("config reload failed, keeping previous configuration")
		return
	}

	log.Info().Str("path", w.path).Msg("configuration reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
