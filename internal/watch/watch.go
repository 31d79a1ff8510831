// Package watch monitors a snapshot directory and reports settled
// changes so the CLI can re-verify touched suites while snapshots are
// being edited.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"snapmatch/internal/logging"
	"snapmatch/internal/snapshot"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Handler receives the path of a snapshot file whose changes have
// settled. It runs on the watcher goroutine; long work should be
// dispatched elsewhere.
type Handler func(path string)

// Watcher debounces filesystem events over *.snapshot.json files in
// one directory. Editors fire several events per save; only the last
// one within the debounce window reaches the handler.
type Watcher struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	dir     string
	handler Handler

	debounce time.Duration
	pending  map[string]time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the settle window. Tests shorten it.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over dir. Start must be called to begin
// receiving events.
func New(dir string, handler Handler, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		dir:      dir,
		handler:  handler,
		debounce: defaultDebounce,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. Non-blocking; the event loop runs on its own
// goroutine until Stop or context cancellation. On error the watcher is
// not running and Stop stays safe to call.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}
	w.running = true
	logging.Get(logging.CategoryWatch).Infow("watching snapshot directory", "dir", w.dir)

	go w.run(ctx)
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
// Safe to call repeatedly, and after a failed Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		// Never started (or already stopped): just release fsnotify.
		_ = w.fsw.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	log := logging.Get(logging.CategoryWatch)

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			log.Debugw("snapshot event", "op", ev.Op.String(), "path", ev.Name)
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnw("watcher error", "error", err)
		case <-ticker.C:
			for _, path := range w.settled() {
				w.handler(path)
			}
		}
	}
}

// settled drains pending entries older than the debounce window.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	now := time.Now()
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			paths = append(paths, path)
			delete(w.pending, path)
		}
	}
	return paths
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasSuffix(filepath.Base(ev.Name), snapshot.FileSuffix)
}
