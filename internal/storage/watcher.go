package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const invalidatingOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher invalidates cached configurations when their settings files change.
// Parent directories are watched rather than files so that editors replacing
// a file by rename are noticed too.
type Watcher struct {
	store   Storage
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	dirs map[string]struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewWatcher creates a Watcher invalidating entries of store.
func NewWatcher(store Storage, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		store:   store,
		logger:  logger,
		watcher: fw,
		dirs:    make(map[string]struct{}),
	}, nil
}

// Watch starts watching the directory holding path. Repeated calls for the
// same directory are no-ops.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(filepath.Clean(path))

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = struct{}{}
	w.logger.Debug("watching settings directory", zap.String("dir", dir))
	return nil
}

// Dirs returns the number of watched directories.
func (w *Watcher) Dirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// Run processes filesystem events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&invalidatingOps == 0 {
		return
	}
	path := filepath.Clean(event.Name)
	if w.store.Invalidate(path) {
		w.logger.Info("settings file changed, cache entry dropped",
			zap.String("path", path),
			zap.String("op", event.Op.String()),
		)
	}
}

// Close stops the underlying fsnotify watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.watcher.Close()
	})
	return w.closeErr
}
