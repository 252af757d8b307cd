// Package sync implements the change-detection and incremental
// index-synchronization engine: version checking against the notes
// database, debouncing of change signals, the at-most-one-in-flight
// guard, and the synchronization pass that routes modified notes
// through the index mutator and commits progress to the metadata
// record.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notedex/notedex/internal/index"
	"github.com/notedex/notedex/internal/notedb"
	"github.com/notedex/notedex/internal/store"
)

// DefaultDebounce is the quiet period before a scheduled pass runs.
const DefaultDebounce = 1 * time.Second

// NoteSource is the database collaborator seen by the synchronizer.
type NoteSource interface {
	// Version returns the database's monotonic change counter.
	Version(ctx context.Context) (int64, error)

	// NotesModifiedSince returns notes modified strictly after the
	// watermark, ordered by modification time ascending.
	NotesModifiedSince(ctx context.Context, watermark int64) ([]notedb.Note, error)
}

// Synchronizer owns all mutable synchronization state: the in-progress
// flag, the change-observed flag, and the single pending debounce
// timer. It is a context object rather than package globals so multiple
// indexes could coexist in one process.
//
// Concurrency model: the version check and both notification sources
// may fire concurrently; the mutex protects the flags and timer handle,
// and the in-progress flag guarantees at most one pass mutates the
// index and metadata at a time. Checks never mutate the index.
type Synchronizer struct {
	source   NoteSource
	mutator  *index.Mutator
	meta     *store.Metadata
	indexDir string
	debounce time.Duration

	mu             sync.Mutex
	inProgress     bool
	changeObserved bool
	pending        *time.Timer
	stopped        bool
}

// Options configures a Synchronizer.
type Options struct {
	// Debounce is the coalescing window; <= 0 uses the default.
	Debounce time.Duration
}

// New creates a synchronizer over loaded state. meta and the mutator's
// index/mapping stay in memory for the process lifetime and are written
// back after every successful pass.
func New(source NoteSource, mutator *index.Mutator, meta *store.Metadata, indexDir string, opts Options) *Synchronizer {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Synchronizer{
		source:   source,
		mutator:  mutator,
		meta:     meta,
		indexDir: indexDir,
		debounce: debounce,
	}
}

// OnRawChange handles a raw file-watch event: mark that a change was
// observed, and trigger a version check unless a pass is already
// running (the running pass re-checks the flag when it finishes).
// This is the CheckFunc handed to the file watcher.
func (s *Synchronizer) OnRawChange(ctx context.Context) {
	s.mu.Lock()
	s.changeObserved = true
	busy := s.inProgress
	s.mu.Unlock()

	if busy {
		return
	}
	s.CheckVersion(ctx)
}

// CheckVersion reads the database version counter and compares it with
// the last observed value. On change it records the new counter and,
// if no pass is in flight, schedules one. It is the single authority
// for "did real content change": both notification paths land here, so
// a file event with no counter movement is a no-op. Read errors are
// treated as "unchanged"; the next trigger retries.
func (s *Synchronizer) CheckVersion(ctx context.Context) bool {
	version, err := s.source.Version(ctx)
	if err != nil {
		slog.Warn("version check failed, treating as unchanged",
			slog.String("error", err.Error()))
		return false
	}

	s.mu.Lock()
	if version == s.meta.LastVersion {
		s.mu.Unlock()
		return false
	}

	slog.Debug("database version changed",
		slog.Int64("from", s.meta.LastVersion),
		slog.Int64("to", version))
	s.meta.LastVersion = version
	s.changeObserved = true
	busy := s.inProgress
	s.mu.Unlock()

	if !busy {
		s.ScheduleUpdate(ctx)
	}
	return true
}

// ScheduleUpdate arms the debounce timer, cancelling any pending one
// first so bursts of change signals coalesce into a single pass. There
// is never more than one pending timer.
func (s *Synchronizer) ScheduleUpdate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.debounce, func() {
		// Detach only our own handle: if a reschedule already replaced
		// it (Stop on a fired timer returns false), the replacement
		// stays pending and cancellable.
		s.mu.Lock()
		if s.pending == t {
			s.pending = nil
		}
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		if err := s.RunPass(ctx); err != nil {
			slog.Error("synchronization pass failed",
				slog.String("error", err.Error()))
		}
	})
	s.pending = t
}

// RunPass executes one synchronization pass. If a pass is already in
// flight the call is a no-op: a later change notification, or the
// running pass's own re-check, provides eventual convergence.
//
// Per-note failures are logged and skipped so one bad note cannot block
// the batch. The watermark only advances to the maximum modification
// time actually processed, so a crash mid-batch re-fetches anything not
// yet committed.
func (s *Synchronizer) RunPass(ctx context.Context) error {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		slog.Debug("pass already in flight, skipping")
		return nil
	}
	s.inProgress = true
	s.changeObserved = false
	watermark := s.meta.LastUpdate
	s.mu.Unlock()

	err := s.runGuarded(ctx, watermark)

	s.mu.Lock()
	s.inProgress = false
	rearm := s.changeObserved && !s.stopped
	s.mu.Unlock()

	// Changes that landed while this pass was running are not lost.
	if rearm {
		slog.Debug("change observed mid-pass, rescheduling")
		s.ScheduleUpdate(ctx)
	}
	return err
}

// runGuarded is the body of a pass; the in-progress flag is held.
func (s *Synchronizer) runGuarded(ctx context.Context, watermark int64) error {
	notes, err := s.source.NotesModifiedSince(ctx, watermark)
	if err != nil {
		return fmt.Errorf("fetch modified notes: %w", err)
	}
	if len(notes) == 0 {
		slog.Debug("no notes past watermark", slog.Int64("watermark", watermark))
		return nil
	}

	// Indexed timestamps are collected locally; the shared record is
	// only touched under the mutex below, because CheckVersion writes
	// LastVersion concurrently from the notification goroutines.
	indexed := make(map[string]int64, len(notes))
	var maxSeen int64
	for _, note := range notes {
		_, known := s.meta.IndexedNotes[note.ID]

		var indexErr error
		if known {
			_, indexErr = s.mutator.UpdateNote(ctx, note.ID, note.Title, note.Content)
		} else {
			_, indexErr = s.mutator.AddNote(ctx, note.ID, note.Title, note.Content)
		}
		if indexErr != nil {
			slog.Warn("skipping note",
				slog.String("note", note.ID),
				slog.String("error", indexErr.Error()))
			continue
		}

		indexed[note.ID] = note.ModifiedAt
		if note.ModifiedAt > maxSeen {
			maxSeen = note.ModifiedAt
		}
	}

	if len(indexed) == 0 {
		return nil
	}

	s.mu.Lock()
	for id, ts := range indexed {
		s.meta.IndexedNotes[id] = ts
	}
	if maxSeen > s.meta.LastUpdate {
		s.meta.LastUpdate = maxSeen
	}
	// SaveMetadata marshals outside the lock, so it gets a private copy
	// that no concurrent version check can write to.
	snapshot := s.meta.Clone()
	s.mu.Unlock()

	// Persist index first, then metadata: if the metadata write is lost
	// the notes are merely re-indexed on the next pass.
	if err := s.mutator.Save(s.indexDir); err != nil {
		slog.Error("index persist failed, in-memory state stays authoritative",
			slog.String("error", err.Error()))
		return err
	}
	if err := store.SaveMetadata(s.indexDir, snapshot); err != nil {
		slog.Error("metadata persist failed, in-memory state stays authoritative",
			slog.String("error", err.Error()))
		return err
	}

	slog.Info("synchronization pass complete",
		slog.Int("processed", len(indexed)),
		slog.Int("fetched", len(notes)),
		slog.Int64("watermark", snapshot.LastUpdate))
	return nil
}

// Stop cancels any pending debounce timer and prevents new scheduling.
// Safe to call multiple times; an in-flight pass is not aborted.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// InProgress reports whether a pass is currently running.
func (s *Synchronizer) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// Metadata returns the in-memory metadata record (status reporting).
func (s *Synchronizer) Metadata() *store.Metadata {
	return s.meta
}
