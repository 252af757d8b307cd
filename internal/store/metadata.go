// Package store persists the three durable artifacts of a notedex
// index: the append-only vector index, the position-to-note mapping,
// and the synchronization metadata record.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	nderr "github.com/notedex/notedex/internal/errors"
)

// MetadataFileName is the metadata artifact inside the index directory.
const MetadataFileName = "metadata.json"

// Metadata is the singleton durable record of synchronization progress.
type Metadata struct {
	// LastUpdate is the watermark: every note with a modification time
	// at or below it is known to be indexed. Monotonically
	// non-decreasing; advanced only after a pass has durably committed.
	LastUpdate int64 `json:"lastUpdate"`

	// IndexedNotes maps note ID to the timestamp at which it was last
	// indexed.
	IndexedNotes map[string]int64 `json:"indexedNotes"`

	// LastVersion is the last observed value of the database's
	// monotonic change counter.
	LastVersion int64 `json:"lastVersion"`
}

// NewMetadata returns a fresh, empty metadata record.
func NewMetadata() *Metadata {
	return &Metadata{
		IndexedNotes: make(map[string]int64),
	}
}

// Clone returns a deep copy of the record. Callers that persist while
// other goroutines may write the original must serialize a copy taken
// under the owner's lock.
func (m *Metadata) Clone() *Metadata {
	notes := make(map[string]int64, len(m.IndexedNotes))
	for id, ts := range m.IndexedNotes {
		notes[id] = ts
	}
	return &Metadata{
		LastUpdate:   m.LastUpdate,
		IndexedNotes: notes,
		LastVersion:  m.LastVersion,
	}
}

// LoadMetadata reads the metadata record from dir. A missing or
// unreadable record is not an error: a fresh record is returned and
// written back immediately so subsequent loads are well-defined.
func LoadMetadata(dir string) *Metadata {
	path := filepath.Join(dir, MetadataFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("metadata unreadable, starting fresh",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		m := NewMetadata()
		if saveErr := SaveMetadata(dir, m); saveErr != nil {
			slog.Warn("could not write fresh metadata",
				slog.String("error", saveErr.Error()))
		}
		return m
	}

	m := NewMetadata()
	if err := json.Unmarshal(data, m); err != nil {
		slog.Warn("metadata corrupt, starting fresh",
			slog.String("path", path),
			slog.String("error", err.Error()))
		m = NewMetadata()
	}
	if m.IndexedNotes == nil {
		m.IndexedNotes = make(map[string]int64)
	}
	return m
}

// SaveMetadata overwrites the metadata record atomically (tmp + rename,
// whole record in one write). On failure the in-memory record remains
// authoritative; the caller retries on the next successful pass.
func SaveMetadata(dir string, m *Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("create index directory %s: %v", dir, err), err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("marshal metadata: %v", err), err)
	}

	path := filepath.Join(dir, MetadataFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("write metadata: %v", err), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("rename metadata into place: %v", err), err)
	}
	return nil
}
