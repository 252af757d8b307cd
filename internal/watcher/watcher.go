// Package watcher provides the two change-notification sources for the
// synchronizer: a file-level watch on the notes database (primary) and
// a fixed-interval poll (safety net). Both run at the same time and
// funnel into one version-check callback; neither knows about the
// other, so either can be disabled without affecting correctness, only
// latency.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CheckFunc is invoked by a notification source when the database may
// have changed. It must be cheap and must never panic: the version
// check it triggers is the single authority on whether content actually
// changed, so spurious invocations are harmless.
type CheckFunc func(ctx context.Context)

// FileWatcher watches the notes database file for modification events.
// SQLite writes often land in the -wal or -journal sibling first, so
// those are watched too. The watch is on the parent directory because
// editors and SQLite both replace files in ways that break a watch on
// the file itself.
type FileWatcher struct {
	fsw     *fsnotify.Watcher
	targets map[string]struct{}
	check   CheckFunc

	closeOnce sync.Once
	closeErr  error
}

// NewFileWatcher creates a watcher for the database file. Failure here
// is not fatal to the system: the caller logs it and runs poll-only.
func NewFileWatcher(dbPath string, check CheckFunc) (*FileWatcher, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &FileWatcher{
		fsw: fsw,
		targets: map[string]struct{}{
			absPath:              {},
			absPath + "-wal":     {},
			absPath + "-journal": {},
		},
		check: check,
	}, nil
}

// Run processes file events until ctx is cancelled or the watcher is
// closed. Watch-subsystem errors are logged and swallowed; the
// always-running poll covers any missed events.
func (w *FileWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watch error, relying on poll",
				slog.String("error", err.Error()))
		}
	}
}

// handleEvent filters directory noise down to writes on the database
// file or its WAL/journal siblings.
func (w *FileWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if _, watched := w.targets[filepath.Clean(event.Name)]; !watched {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	slog.Debug("database file event",
		slog.String("file", event.Name),
		slog.String("op", event.Op.String()))
	w.check(ctx)
}

// Close cancels the watch subscription. Safe to call multiple times.
func (w *FileWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}
