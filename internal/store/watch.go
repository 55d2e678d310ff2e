package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/mkessler/quern/internal/events"
)

// Watcher invalidates the snapshot cache when files under the store root
// change, and publishes store.changed events for observers.
type Watcher struct {
	fsw     *fsnotify.Watcher
	builder *Builder
	hub     *events.Hub
	logger  *slog.Logger
}

// NewWatcher watches root and all its non-hidden subdirectories.
func NewWatcher(root string, builder *Builder, hub *events.Hub, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	return &Watcher{
		fsw:     fsw,
		builder: builder,
		hub:     hub,
		logger:  logger.With("component", "watcher"),
	}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.builder.Invalidate()
			if ev.Op.Has(fsnotify.Create) {
				// New directories need their own watch.
				_ = w.fsw.Add(ev.Name)
			}
			w.logger.Debug("store changed", "path", ev.Name, "op", ev.Op.String())
			if w.hub != nil {
				w.hub.Publish(events.TypeStoreChanged, map[string]string{
					"path": ev.Name,
					"op":   ev.Op.String(),
				})
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
