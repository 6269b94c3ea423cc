// Package index provides interfaces and types for vector index backends.
//
// A vector index holds the embeddings of memory records keyed by record
// ID and answers nearest-neighbor queries. It is a derived structure:
// the relational store remains the source of truth, and an index can
// always be rebuilt from it.
package index

import (
	"context"
	"errors"
)

// ErrCorrupt indicates that persisted index files are inconsistent with
// each other and the index should be rebuilt from storage.
var ErrCorrupt = errors.New("index files are corrupt or inconsistent")

// ErrDimensionMismatch indicates that a vector's dimension does not
// match the index configuration.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a single nearest-neighbor search result.
type Hit struct {
	// ID is the record ID of the matched vector.
	ID int64

	// Distance is the cosine distance to the query vector, in [0, 2].
	// Smaller is more similar.
	Distance float64
}

// VectorIndex defines the interface for vector index backends.
//
// All index implementations (flat, chromem) must implement this
// interface. Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Add inserts or replaces the vector for the given record ID.
	Add(ctx context.Context, id int64, vector []float64) error

	// Remove deletes the vector for the given record ID.
	// Removing an absent ID is not an error.
	Remove(ctx context.Context, id int64) error

	// Search returns up to k nearest neighbors of the query vector,
	// ordered by ascending distance. Fewer than k hits are returned
	// when the index holds fewer vectors.
	Search(ctx context.Context, query []float64, k int) ([]Hit, error)

	// Save persists the index to the given path.
	Save(ctx context.Context, path string) error

	// Load restores the index from the given path. Returns an error
	// wrapping ErrCorrupt when the persisted files are inconsistent.
	Load(ctx context.Context, path string) error

	// Clear removes all vectors.
	Clear(ctx context.Context) error

	// Size returns the number of vectors currently indexed.
	Size() int

	// Dimensions returns the vector dimension of the index.
	Dimensions() int
}
