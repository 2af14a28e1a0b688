package rulestore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a FileStore when its backing file changes and invokes an
// invalidation callback so cached rule sets are refreshed. It is opt-in:
// the embedder owns its lifetime and cancels it via context.
type Watcher struct {
	store    *FileStore
	onChange func()
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the store's backing file. onChange is
// called after each successful reload (typically cache.InvalidateAll).
func NewWatcher(store *FileStore, onChange func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		onChange: onChange,
		debounce: 100 * time.Millisecond,
		logger:   logger,
	}
}

// Run watches until the context is canceled. Editors replace files via
// rename, so the parent directory is watched and events are filtered to
// the target file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.store.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.store.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := w.store.Reload(); err != nil {
				w.logger.Warn("rule file reload failed, keeping previous rules", "path", w.store.path, "error", err)
				continue
			}
			w.logger.Info("rule file reloaded", "path", w.store.path)
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rule file watcher error", "error", err)
		}
	}
}
