package store

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	nderr "github.com/notedex/notedex/internal/errors"
)

// Index artifact names inside the index directory.
const (
	// IndexFileName holds the serialized vector graph.
	IndexFileName = "vectors.hnsw"
	// MappingFileName holds the position-to-note-ID mapping.
	MappingFileName = "mapping.json"

	// indexMetaSuffix is the sidecar carrying dimensions and count,
	// needed to validate and resume an empty or partially-live graph.
	indexMetaSuffix = ".meta"
)

// VectorIndex is an append-only collection of fixed-dimension vectors.
// Positions are assigned sequentially on append and are never reused;
// there is no in-place update and no delete. Pseudo-updates are done by
// the mutator layer: the old position is dropped from the PositionMap
// (becoming a tombstone) and the new vector is appended.
type VectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int
	count uint64
}

// indexMeta is the sidecar payload for persistence.
type indexMeta struct {
	Dims  int
	Count uint64
}

// SearchHit is one nearest-neighbor result.
type SearchHit struct {
	Position uint64
	Distance float32
	Score    float32
}

// NewVectorIndex creates an empty index for vectors of the given dimension.
func NewVectorIndex(dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions %d", dims)
	}

	return &VectorIndex{graph: newGraph(), dims: dims}, nil
}

// Append adds one vector and returns its position, which equals the
// vector count before the append.
func (v *VectorIndex) Append(vec []float32) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(vec) != v.dims {
		return 0, fmt.Errorf("vector has %d dimensions, index wants %d", len(vec), v.dims)
	}

	position := v.count
	v.graph.Add(hnsw.MakeNode(position, vec))
	v.count++
	return position, nil
}

// Count returns the total number of vectors ever appended, tombstones
// included.
func (v *VectorIndex) Count() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}

// Dimensions returns the fixed vector dimension.
func (v *VectorIndex) Dimensions() int {
	return v.dims
}

// Search returns up to k nearest positions for the query vector.
// Tombstone filtering is the caller's concern: positions returned here
// may no longer be live in the PositionMap.
func (v *VectorIndex) Search(query []float32, k int) ([]SearchHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dims {
		return nil, fmt.Errorf("query has %d dimensions, index wants %d", len(query), v.dims)
	}
	if v.count == 0 {
		return nil, nil
	}

	nodes := v.graph.Search(query, k)
	hits := make([]SearchHit, 0, len(nodes))
	for _, node := range nodes {
		distance := v.graph.Distance(query, node.Value)
		hits = append(hits, SearchHit{
			Position: node.Key,
			Distance: distance,
			// Cosine distance ranges 0..2; fold into a 0..1 score.
			Score: 1.0 - distance/2.0,
		})
	}
	return hits, nil
}

// save persists the graph and sidecar to path atomically.
func (v *VectorIndex) save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	metaPath := path + indexMetaSuffix
	tmpMeta := metaPath + ".tmp"
	mf, err := os.Create(tmpMeta)
	if err != nil {
		return fmt.Errorf("create index meta: %w", err)
	}
	if err := gob.NewEncoder(mf).Encode(indexMeta{Dims: v.dims, Count: v.count}); err != nil {
		_ = mf.Close()
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("encode index meta: %w", err)
	}
	if err := mf.Close(); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("close index meta: %w", err)
	}
	return os.Rename(tmpMeta, metaPath)
}

// load reads the graph and sidecar from path.
func (v *VectorIndex) load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	metaPath := path + indexMetaSuffix
	mf, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("open index meta: %w", err)
	}
	var meta indexMeta
	decodeErr := gob.NewDecoder(mf).Decode(&meta)
	_ = mf.Close()
	if decodeErr != nil {
		return nderr.New(nderr.ErrCodeIndexCorrupt,
			fmt.Sprintf("decode index meta %s: %v", metaPath, decodeErr), decodeErr)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return nderr.New(nderr.ErrCodeIndexCorrupt,
			fmt.Sprintf("import graph %s: %v", path, err), err)
	}

	v.dims = meta.Dims
	v.count = meta.Count
	return nil
}

// PositionMap is the live view from vector-index position to note ID.
// Positions present in the index but absent here are tombstones and
// must never surface as search results.
type PositionMap map[uint64]string

// PositionFor scans for the live position of a note ID. A linear scan
// is fine at note-corpus sizes; revisit if corpora grow past ~10^6.
func (p PositionMap) PositionFor(id string) (uint64, bool) {
	for pos, noteID := range p {
		if noteID == id {
			return pos, true
		}
	}
	return 0, false
}

// MarshalJSON serializes positions as string keys, per the on-disk
// mapping schema.
func (p PositionMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(p))
	for pos, id := range p {
		out[strconv.FormatUint(pos, 10)] = id
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the string-keyed on-disk form.
func (p *PositionMap) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m := make(PositionMap, len(raw))
	for key, id := range raw {
		pos, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid position key %q: %w", key, err)
		}
		m[pos] = id
	}
	*p = m
	return nil
}

// LoadIndex reads the vector index and position mapping from dir.
// If either artifact is absent this is a distinct "missing index"
// condition (ErrCodeIndexMissing): the caller decides whether to
// trigger a full rebuild, and must not silently start empty.
func LoadIndex(dir string) (*VectorIndex, PositionMap, error) {
	indexPath := filepath.Join(dir, IndexFileName)
	mappingPath := filepath.Join(dir, MappingFileName)

	for _, path := range []string{indexPath, indexPath + indexMetaSuffix, mappingPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, nil, nderr.New(nderr.ErrCodeIndexMissing,
				fmt.Sprintf("index artifact %s not readable", path), err).
				WithSuggestion("run 'notedex rebuild' to build the index from scratch")
		}
	}

	index := &VectorIndex{graph: newGraph()}
	if err := index.load(indexPath); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(mappingPath)
	if err != nil {
		return nil, nil, nderr.New(nderr.ErrCodeIndexMissing,
			fmt.Sprintf("read mapping %s: %v", mappingPath, err), err)
	}
	var mapping PositionMap
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, nil, nderr.New(nderr.ErrCodeIndexCorrupt,
			fmt.Sprintf("parse mapping %s: %v", mappingPath, err), err)
	}

	return index, mapping, nil
}

// SaveIndex persists both artifacts. Must be called after every batch
// of mutations that should survive a restart.
func SaveIndex(dir string, index *VectorIndex, mapping PositionMap) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("create index directory %s: %v", dir, err), err)
	}

	if err := index.save(filepath.Join(dir, IndexFileName)); err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("save vector index: %v", err), err)
	}

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("marshal mapping: %v", err), err)
	}
	mappingPath := filepath.Join(dir, MappingFileName)
	tmpPath := mappingPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("write mapping: %v", err), err)
	}
	if err := os.Rename(tmpPath, mappingPath); err != nil {
		_ = os.Remove(tmpPath)
		return nderr.New(nderr.ErrCodePersistFailed,
			fmt.Sprintf("rename mapping into place: %v", err), err)
	}
	return nil
}

// newGraph builds a graph with the standard notedex parameters.
func newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return graph
}
