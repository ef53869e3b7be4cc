package scene

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"scenecraft/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the scene data file for external edits (the WebXR front
// end writes the same file) and reloads the store when it changes.
// Writes performed through Flush are suppressed so the store does not
// reload its own checkpoints.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	store       *Store
	path        string
	onReload    func() // runs after every successful reload
	lastEvent   time.Time
	debounceDur time.Duration
	suppressed  time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the given scene file.
// onReload, if non-nil, runs after every successful reload (used by the
// server to broadcast a fresh snapshot to connected observers).
func NewWatcher(store *Store, path string, onReload func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:     fw,
		store:       store,
		path:        path,
		debounceDur: 500 * time.Millisecond, // debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		onReload:    onReload,
	}
	return w, nil
}

// Suppress ignores file events for the given window. The flusher calls this
// right before writing its own checkpoint.
func (w *Watcher) Suppress(d time.Duration) {
	w.mu.Lock()
	w.suppressed = time.Now().Add(d)
	w.mu.Unlock()
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: editors and atomic renames replace
	// the inode and a direct file watch goes stale.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop(ctx)
	logging.Scene("watching %s for external edits", w.path)
	return nil
}

// Stop ends the watch loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.handleChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryScene).Error("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	now := time.Now()
	if now.Before(w.suppressed) {
		w.mu.Unlock()
		return
	}
	if now.Sub(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.lastEvent = now
	onReload := w.onReload
	w.mu.Unlock()

	objects, err := LoadFile(w.path)
	if err != nil {
		// A partially written file shows up as malformed JSON; keep the
		// in-memory scene and wait for the next event.
		logging.Get(logging.CategoryScene).Warn("external scene change not loadable: %v", err)
		return
	}
	if err := w.store.ReplaceAll(objects); err != nil {
		logging.Get(logging.CategoryScene).Error("external scene rejected: %v", err)
		return
	}

	logging.Scene("scene reloaded from external edit (%d objects)", len(objects))
	if onReload != nil {
		onReload()
	}
}
