// Package watcher watches the library database for changes and triggers
// reindexing after a debounce period.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// ErrStopped is returned by Start after Stop has been called. A stopped
// watcher cannot be restarted; create a new one instead.
var ErrStopped = errors.New("watcher stopped")

// Watcher watches a library database file and invokes a callback when it
// changes. The reference manager writes through a journal, so the watch
// covers the database's directory and matches the file plus its -wal and
// -journal siblings. Rapid write bursts collapse into one callback per
// debounce window.
type Watcher struct {
	dbPath   string
	onChange func()
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	started bool
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the debounce period.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the database at dbPath. onChange is
// invoked after the file has been quiet for the debounce period.
func NewWatcher(dbPath string, onChange func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dbPath:   dbPath,
		onChange: onChange,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(filepath.Dir(w.dbPath)); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.String("path", w.dbPath))
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !w.matches(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if w.logger != nil {
		w.logger.Debug("library change detected", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// matches reports whether path is the database file or one of its journal
// siblings.
func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	dbBase := filepath.Base(w.dbPath)
	return base == dbBase ||
		base == dbBase+"-wal" ||
		base == dbBase+"-journal" ||
		strings.TrimSuffix(base, filepath.Ext(base)) == dbBase
}

// Stop stops the watcher permanently. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		w.started = false
		w.stopped = true
		w.mu.Unlock()
	})
}
