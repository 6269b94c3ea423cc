// Package chromem provides a vector index backed by chromem-go, an
// embedded pure-Go vector database.
//
// Unlike the flat index, a persistent chromem index writes every
// document to disk as it is added, so Save and Load are no-ops. An
// in-memory chromem index (empty path) behaves like the flat index
// without persistence.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engramdb/engram-go/pkg/index"
)

// collectionName is the single chromem collection holding all vectors.
const collectionName = "memories"

// Index implements index.VectorIndex on top of chromem-go.
type Index struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	dimensions int
}

// New creates a chromem index. A non-empty path opens a persistent
// database rooted at that directory; an empty path keeps everything in
// memory.
func New(path string, dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("chromem: dimensions must be positive, got %d", dimensions)
	}

	var db *chromem.DB
	var err error
	if path != "" {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("chromem: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: %w", err)
	}

	return &Index{
		db:         db,
		collection: collection,
		dimensions: dimensions,
	}, nil
}

// Add inserts or replaces the vector for id.
//
// chromem has no replace operation, so an existing document with the
// same ID is deleted first.
func (ix *Index) Add(ctx context.Context, id int64, vector []float64) error {
	if len(vector) != ix.dimensions {
		return fmt.Errorf("chromem: %w: got %d, want %d", index.ErrDimensionMismatch, len(vector), ix.dimensions)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	docID := strconv.FormatInt(id, 10)
	if err := ix.collection.Delete(ctx, nil, nil, docID); err != nil {
		return fmt.Errorf("chromem: Add: %w", err)
	}

	err := ix.collection.AddDocument(ctx, chromem.Document{
		ID:        docID,
		Embedding: toFloat32(vector),
		Content:   docID,
	})
	if err != nil {
		return fmt.Errorf("chromem: Add: %w", err)
	}
	return nil
}

// Remove deletes the vector for id. Absent IDs are ignored.
func (ix *Index) Remove(ctx context.Context, id int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.collection.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("chromem: Remove: %w", err)
	}
	return nil
}

// Search returns up to k nearest neighbors by cosine distance.
func (ix *Index) Search(ctx context.Context, query []float64, k int) ([]index.Hit, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("chromem: %w: got %d, want %d", index.ErrDimensionMismatch, len(query), ix.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// chromem rejects nResults larger than the collection.
	if count := ix.collection.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := ix.collection.QueryEmbedding(ctx, toFloat32(query), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: Search: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chromem: Search: bad document id %q: %w", r.ID, index.ErrCorrupt)
		}
		hits = append(hits, index.Hit{
			ID:       id,
			Distance: 1 - float64(r.Similarity),
		})
	}

	// chromem orders by similarity; re-sort to break distance ties on ID.
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})

	return hits, nil
}

// Save is a no-op: a persistent chromem database writes documents to
// disk as they are added.
func (ix *Index) Save(_ context.Context, _ string) error {
	return nil
}

// Load is a no-op: a persistent chromem database reads its directory
// when opened.
func (ix *Index) Load(_ context.Context, _ string) error {
	return nil
}

// Clear drops and recreates the collection.
func (ix *Index) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("chromem: Clear: %w", err)
	}

	collection, err := ix.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("chromem: Clear: %w", err)
	}
	ix.collection = collection
	return nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.collection.Count()
}

// Dimensions returns the vector dimension.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
