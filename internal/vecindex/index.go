// Package vecindex provides a persistent nearest-neighbor index over face
// embeddings. Every entry is keyed by the id of its relational face row, so
// the same integer identifies a face in both stores. The index lives in
// memory and must be saved explicitly after every mutating call.
package vecindex

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// NotFound is the sentinel id returned by searches against an empty index.
const NotFound int64 = -1

// HNSW parameters for 512-dim face embeddings.
const (
	// maxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	maxNeighbors = 16
)

const metadataVersion = 1

// ErrDimensionMismatch is returned when a vector's length disagrees with the
// dimension the index was configured with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Match is a single nearest-neighbor search result.
type Match struct {
	ID         int64
	Similarity float64
}

// metadata is persisted next to the graph file and validates it on load.
type metadata struct {
	Version int     `json:"version"`
	Dim     int     `json:"dim"`
	IDs     []int64 `json:"ids"`
}

// Index wraps an HNSW graph over unit-normalized embeddings keyed by face id.
type Index struct {
	mu    sync.RWMutex
	dim   int
	path  string // empty means memory-only
	graph *hnsw.Graph[int64]
	ids   map[int64]struct{}
}

// New creates an empty memory-only index. Used by tests and rebuild paths.
func New(dim int) *Index {
	return &Index{
		dim: dim,
		ids: make(map[int64]struct{}),
	}
}

// Open loads the index from path, or returns a fresh index bound to path when
// the file does not exist yet. The configured dimension must match the one
// recorded in the index metadata.
func Open(path string, dim int) (*Index, error) {
	idx := New(dim)
	idx.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return idx, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	g := newGraph()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("importing HNSW graph from %s: %w", path, err)
	}

	meta, err := loadMetadata(path)
	if err != nil {
		return nil, err
	}
	if meta.Dim != dim {
		return nil, fmt.Errorf("%w: index file %s has dimension %d, configured %d",
			ErrDimensionMismatch, path, meta.Dim, dim)
	}

	idx.graph = g
	idx.ids = make(map[int64]struct{}, len(meta.IDs))
	for _, id := range meta.IDs {
		idx.ids[id] = struct{}{}
	}

	return idx, nil
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Dim returns the configured embedding dimension.
func (idx *Index) Dim() int {
	return idx.dim
}

func (idx *Index) checkDim(vec []float32) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("%w: got %d, index configured for %d", ErrDimensionMismatch, len(vec), idx.dim)
	}
	return nil
}

// Insert adds one embedding under the given face id. The vector is
// L2-normalized before insertion so inner product equals cosine similarity.
// The caller must invoke Save afterwards to make the insert durable.
func (idx *Index) Insert(id int64, embedding []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.insertLocked(id, embedding)
}

// InsertBatch adds several embeddings at once, ids and embeddings pairwise.
// All dimensions are validated before anything is inserted, so a bad vector
// leaves the index untouched.
func (idx *Index) InsertBatch(ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("ids/embeddings length mismatch: %d vs %d", len(ids), len(embeddings))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, emb := range embeddings {
		if err := idx.checkDim(emb); err != nil {
			return err
		}
	}
	for i, id := range ids {
		if err := idx.insertLocked(id, embeddings[i]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) insertLocked(id int64, embedding []float32) error {
	if err := idx.checkDim(embedding); err != nil {
		return err
	}

	if idx.graph == nil {
		idx.graph = newGraph()
	}

	idx.graph.Add(hnsw.MakeNode(id, normalizeL2(embedding)))
	idx.ids[id] = struct{}{}
	return nil
}

// SearchNearest returns up to k matches ordered by descending similarity.
// The query is normalized before searching. An empty index yields a single
// NotFound entry rather than an error.
func (idx *Index) SearchNearest(embedding []float32, k int) ([]Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkDim(embedding); err != nil {
		return nil, err
	}

	if idx.graph == nil || len(idx.ids) == 0 {
		return []Match{{ID: NotFound}}, nil
	}

	query := normalizeL2(embedding)
	neighbors := idx.graph.Search(query, k)

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := idx.ids[n.Key]; !ok {
			continue
		}
		matches = append(matches, Match{
			ID:         n.Key,
			Similarity: 1 - CosineDistance(query, n.Value),
		})
	}

	if len(matches) == 0 {
		return []Match{{ID: NotFound}}, nil
	}
	return matches, nil
}

// Nearest is the k=1 convenience used by identity resolution.
func (idx *Index) Nearest(embedding []float32) (int64, float64, error) {
	matches, err := idx.SearchNearest(embedding, 1)
	if err != nil {
		return NotFound, 0, err
	}
	return matches[0].ID, matches[0].Similarity, nil
}

// Contains reports whether the index holds an entry for the given face id.
func (idx *Index) Contains(id int64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.ids[id]
	return ok
}

// Count returns the number of indexed entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Save flushes the in-memory graph and its metadata to disk. The index
// otherwise lives only in memory, so every mutating call must be followed by
// a Save before the operation is considered complete. Writes go through a
// temp file and rename so a crash never leaves a truncated index.
func (idx *Index) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.path == "" {
		return nil // memory-only index
	}

	g := idx.graph
	if g == nil {
		// Materialize the artifact even before the first insert so the
		// db/index pairing check can rely on both files existing together.
		g = newGraph()
	}

	tmp := idx.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	if err := g.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("replacing index file: %w", err)
	}

	meta := metadata{
		Version: metadataVersion,
		Dim:     idx.dim,
		IDs:     make([]int64, 0, len(idx.ids)),
	}
	for id := range idx.ids {
		meta.IDs = append(meta.IDs, id)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}
	if err := os.WriteFile(idx.path+".meta", data, 0600); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}

	return nil
}

// loadMetadata reads the .meta sidecar written by Save.
func loadMetadata(path string) (metadata, error) {
	var meta metadata

	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return meta, fmt.Errorf("reading index metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("unmarshaling index metadata: %w", err)
	}
	return meta, nil
}
