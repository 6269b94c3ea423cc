// Package flat provides an in-memory exact-search vector index.
//
// The flat index keeps all vectors in memory and scans them on every
// query. Search is exact, with no approximation, which makes it the
// right default for collections up to the low hundreds of thousands of
// vectors. It persists to a binary vector file plus a JSON mapping
// sidecar holding the record IDs and a checksum.
package flat

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/engramdb/engram-go/pkg/index"
)

// MappingSuffix is appended to the index path to form the sidecar file
// holding record IDs and the consistency checksum.
const MappingSuffix = ".mapping.json"

// Index is an exact-search in-memory vector index.
type Index struct {
	mu         sync.RWMutex
	dimensions int

	// ids and vectors are parallel slices; pos maps ID to slot.
	ids     []int64
	vectors [][]float64
	pos     map[int64]int
}

// vectorFile is the gob-encoded payload of the binary index file.
type vectorFile struct {
	Dimensions int
	Vectors    [][]float64
}

// mappingFile is the JSON sidecar written next to the binary file.
type mappingFile struct {
	Dimensions int     `json:"dimensions"`
	Count      int     `json:"count"`
	IDs        []int64 `json:"ids"`
	Checksum   uint64  `json:"checksum"`
}

// New creates an empty flat index for vectors of the given dimension.
func New(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("flat: dimensions must be positive, got %d", dimensions)
	}
	return &Index{
		dimensions: dimensions,
		pos:        make(map[int64]int),
	}, nil
}

// Add inserts or replaces the vector for id.
func (ix *Index) Add(_ context.Context, id int64, vector []float64) error {
	if len(vector) != ix.dimensions {
		return fmt.Errorf("flat: %w: got %d, want %d", index.ErrDimensionMismatch, len(vector), ix.dimensions)
	}

	// Copy so callers can reuse their slice.
	v := make([]float64, len(vector))
	copy(v, vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if slot, ok := ix.pos[id]; ok {
		ix.vectors[slot] = v
		return nil
	}

	ix.pos[id] = len(ix.ids)
	ix.ids = append(ix.ids, id)
	ix.vectors = append(ix.vectors, v)
	return nil
}

// Remove deletes the vector for id. Absent IDs are ignored.
func (ix *Index) Remove(_ context.Context, id int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	slot, ok := ix.pos[id]
	if !ok {
		return nil
	}

	// Swap the last element into the vacated slot.
	last := len(ix.ids) - 1
	if slot != last {
		ix.ids[slot] = ix.ids[last]
		ix.vectors[slot] = ix.vectors[last]
		ix.pos[ix.ids[slot]] = slot
	}

	ix.ids = ix.ids[:last]
	ix.vectors = ix.vectors[:last]
	delete(ix.pos, id)
	return nil
}

// Search scans all vectors and returns up to k nearest neighbors by
// cosine distance, ascending. Ties break on ascending ID so results
// are deterministic.
func (ix *Index) Search(_ context.Context, query []float64, k int) ([]index.Hit, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("flat: %w: got %d, want %d", index.ErrDimensionMismatch, len(query), ix.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]index.Hit, 0, len(ix.ids))
	for i, id := range ix.ids {
		hits = append(hits, index.Hit{
			ID:       id,
			Distance: cosineDistance(query, ix.vectors[i]),
		})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Save writes the vectors to path as a gob-encoded binary file and the
// IDs to path+MappingSuffix as JSON. The mapping carries a checksum
// over the IDs so Load can detect the two files drifting apart.
func (ix *Index) Save(_ context.Context, path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("flat: Save: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flat: Save: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := gob.NewEncoder(f).Encode(vectorFile{
		Dimensions: ix.dimensions,
		Vectors:    ix.vectors,
	}); err != nil {
		return fmt.Errorf("flat: Save: %w", err)
	}

	mapping := mappingFile{
		Dimensions: ix.dimensions,
		Count:      len(ix.ids),
		IDs:        ix.ids,
		Checksum:   idChecksum(ix.ids),
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("flat: Save: %w", err)
	}
	if err := os.WriteFile(path+MappingSuffix, data, 0644); err != nil {
		return fmt.Errorf("flat: Save: %w", err)
	}

	return nil
}

// Load restores the index from files written by Save.
//
// Both files missing is reported as fs.ErrNotExist so callers can treat
// a fresh start as non-fatal. One file missing, or a count, dimension,
// or checksum mismatch between the two, is reported as ErrCorrupt.
func (ix *Index) Load(_ context.Context, path string) error {
	vecData, vecErr := os.Open(path)
	mapData, mapErr := os.ReadFile(path + MappingSuffix)

	if os.IsNotExist(vecErr) && os.IsNotExist(mapErr) {
		return fmt.Errorf("flat: Load: %w", fs.ErrNotExist)
	}
	if os.IsNotExist(vecErr) || os.IsNotExist(mapErr) {
		if vecErr == nil {
			_ = vecData.Close()
		}
		return fmt.Errorf("flat: Load: one of the index files is missing: %w", index.ErrCorrupt)
	}
	if vecErr != nil {
		return fmt.Errorf("flat: Load: %w", vecErr)
	}
	defer func() { _ = vecData.Close() }()
	if mapErr != nil {
		return fmt.Errorf("flat: Load: %w", mapErr)
	}

	var vf vectorFile
	if err := gob.NewDecoder(vecData).Decode(&vf); err != nil {
		return fmt.Errorf("flat: Load: decode vectors: %w", index.ErrCorrupt)
	}

	var mf mappingFile
	if err := json.Unmarshal(mapData, &mf); err != nil {
		return fmt.Errorf("flat: Load: decode mapping: %w", index.ErrCorrupt)
	}

	if vf.Dimensions != ix.dimensions || mf.Dimensions != ix.dimensions {
		return fmt.Errorf("flat: Load: dimension mismatch: %w", index.ErrCorrupt)
	}
	if len(vf.Vectors) != mf.Count || len(mf.IDs) != mf.Count {
		return fmt.Errorf("flat: Load: vector/mapping count mismatch: %w", index.ErrCorrupt)
	}
	if idChecksum(mf.IDs) != mf.Checksum {
		return fmt.Errorf("flat: Load: mapping checksum mismatch: %w", index.ErrCorrupt)
	}
	for _, v := range vf.Vectors {
		if len(v) != ix.dimensions {
			return fmt.Errorf("flat: Load: stored vector dimension mismatch: %w", index.ErrCorrupt)
		}
	}

	pos := make(map[int64]int, mf.Count)
	for i, id := range mf.IDs {
		if _, ok := pos[id]; ok {
			return fmt.Errorf("flat: Load: duplicate id %d in mapping: %w", id, index.ErrCorrupt)
		}
		pos[id] = i
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ids = mf.IDs
	ix.vectors = vf.Vectors
	ix.pos = pos
	return nil
}

// Clear removes all vectors.
func (ix *Index) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ids = nil
	ix.vectors = nil
	ix.pos = make(map[int64]int)
	return nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Dimensions returns the vector dimension.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// cosineDistance returns 1 - cosine similarity, in [0, 2].
// Zero vectors are treated as maximally distant.
func cosineDistance(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// idChecksum hashes the ID list with FNV-64a in little-endian order.
func idChecksum(ids []int64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
