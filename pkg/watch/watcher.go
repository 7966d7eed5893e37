// Package watch provides inbox watching for local scheduling: new or
// updated submission files in a directory trigger a scheduling pass.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InboxWatcher monitors an inbox directory for dropped submission files.
// Changes are debounced so a burst of writes (bulk copy, editor save)
// triggers one pass, not one per file.
type InboxWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	exts     map[string]bool
	debounce time.Duration
	mu       sync.Mutex
	pending  bool

	// OnBatch is invoked once per debounced burst of inbox changes.
	OnBatch func(ctx context.Context) error

	// OnError receives watcher errors.
	OnError func(err error)
}

// NewInboxWatcher creates a watcher over one inbox directory, restricted to
// the given extensions (empty accepts all).
func NewInboxWatcher(dir string, extensions []string) (*InboxWatcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox path: %w", err)
	}

	stat, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat inbox: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("inbox is not a directory: %s", absDir)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch inbox: %w", err)
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}

	return &InboxWatcher{
		watcher:  fsWatcher,
		dir:      absDir,
		exts:     exts,
		debounce: 500 * time.Millisecond,
	}, nil
}

// SetDebounce overrides the default debounce window.
func (w *InboxWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run starts the watch loop. Blocks until the context is cancelled.
func (w *InboxWatcher) Run(ctx context.Context) error {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			// Only writes and creates matter for the inbox
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}

			w.mu.Lock()
			w.pending = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.fire(ctx)
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

// accepts reports whether a changed path should count toward a batch.
func (w *InboxWatcher) accepts(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	return w.exts[strings.ToLower(filepath.Ext(base))]
}

// fire runs the batch callback once for the current burst.
func (w *InboxWatcher) fire(ctx context.Context) {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	if w.OnBatch == nil {
		return
	}
	if err := w.OnBatch(ctx); err != nil && w.OnError != nil {
		w.OnError(err)
	}
}

// Close stops the watcher.
func (w *InboxWatcher) Close() error {
	return w.watcher.Close()
}
