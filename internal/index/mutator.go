// Package index owns the in-memory vector index and its position
// mapping, and applies note additions and pseudo-updates. The vector
// index is append-only, so an update is a logical replacement: the old
// position is dropped from the mapping (leaving a tombstone in the
// index) and the new content is appended at a fresh position.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/notedex/notedex/internal/embed"
	nderr "github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/store"
)

// Mutator mutates the (vector index, position mapping) pair. It is not
// safe for concurrent mutation; the synchronizer's in-progress guard
// ensures only one pass mutates at a time.
type Mutator struct {
	index    *store.VectorIndex
	mapping  store.PositionMap
	embedder embed.Embedder
}

// NewMutator creates a mutator over an existing index and mapping.
func NewMutator(index *store.VectorIndex, mapping store.PositionMap, embedder embed.Embedder) *Mutator {
	return &Mutator{index: index, mapping: mapping, embedder: embedder}
}

// Load reads the index artifacts from dir and wraps them in a mutator.
// A missing index is surfaced as-is (ErrCodeIndexMissing); the caller
// decides whether to rebuild.
func Load(dir string, embedder embed.Embedder) (*Mutator, error) {
	index, mapping, err := store.LoadIndex(dir)
	if err != nil {
		return nil, err
	}
	if index.Dimensions() != embedder.Dimensions() {
		return nil, nderr.New(nderr.ErrCodeIndexCorrupt,
			fmt.Sprintf("index has %d-dimension vectors but embedder %s produces %d",
				index.Dimensions(), embedder.ModelName(), embedder.Dimensions()), nil).
			WithSuggestion("run 'notedex rebuild' after changing embedding models")
	}
	return NewMutator(index, mapping, embedder), nil
}

// NewEmpty creates a mutator over a fresh, empty index sized for the
// embedder. Used by the rebuild path only; the watch path never
// fabricates an empty index on its own.
func NewEmpty(embedder embed.Embedder) (*Mutator, error) {
	index, err := store.NewVectorIndex(embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	return NewMutator(index, make(store.PositionMap), embedder), nil
}

// Save persists the index and mapping to dir.
func (m *Mutator) Save(dir string) error {
	return store.SaveIndex(dir, m.index, m.mapping)
}

// embedText builds the embedding text for a note: title and content
// concatenated, trimmed.
func embedText(title, content string) string {
	return strings.TrimSpace(strings.TrimSpace(title) + "\n\n" + strings.TrimSpace(content))
}

// AddNote embeds a note and appends it at a new position. An empty
// title+content is a per-note validation error (ErrCodeEmptyContent);
// nothing is appended.
func (m *Mutator) AddNote(ctx context.Context, id, title, content string) (uint64, error) {
	text := embedText(title, content)
	if text == "" {
		return 0, nderr.New(nderr.ErrCodeEmptyContent,
			fmt.Sprintf("note %s has no embeddable text", id), nil)
	}

	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("embed note %s: %w", id, err)
	}

	position, err := m.index.Append(vec)
	if err != nil {
		return 0, fmt.Errorf("append note %s: %w", id, err)
	}

	m.mapping[position] = id
	return position, nil
}

// UpdateNote replaces a note's indexed content. The old position, if
// any, is removed from the mapping first — it stays in the index as a
// tombstone — and the new content is appended. Updating a note that was
// never indexed behaves as an add.
func (m *Mutator) UpdateNote(ctx context.Context, id, title, content string) (uint64, error) {
	if oldPos, ok := m.mapping.PositionFor(id); ok {
		delete(m.mapping, oldPos)
		slog.Debug("tombstoned old position",
			slog.String("note", id),
			slog.Uint64("position", oldPos))
	}
	return m.AddNote(ctx, id, title, content)
}

// Result is one search result, already resolved to a live note.
type Result struct {
	NoteID string
	Score  float32
}

// Search embeds the query and returns up to limit live notes by
// similarity. Tombstoned positions are filtered out here: the graph is
// oversampled so tombstones cannot starve the result set.
func (m *Mutator) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nderr.New(nderr.ErrCodeEmptyQuery, "empty search query", nil)
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Oversample: each historical update leaves one tombstone behind.
	oversample := limit + int(m.index.Count()) - len(m.mapping)
	hits, err := m.index.Search(vec, oversample)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]Result, 0, limit)
	for _, hit := range hits {
		id, live := m.mapping[hit.Position]
		if !live {
			continue // tombstone
		}
		results = append(results, Result{NoteID: id, Score: hit.Score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Stats reports live and tombstoned position counts.
type Stats struct {
	Live       int
	Tombstones int
	Total      uint64
}

// Stats returns index occupancy counts for status reporting.
func (m *Mutator) Stats() Stats {
	total := m.index.Count()
	live := len(m.mapping)
	return Stats{
		Live:       live,
		Tombstones: int(total) - live,
		Total:      total,
	}
}

// Mapping exposes the live position mapping (read-only use).
func (m *Mutator) Mapping() store.PositionMap {
	return m.mapping
}
