// Package cache provides an in-process cache for decrypted memory records.
//
// Recall joins index hits against the relational store; the cache sits
// in front of that join so hot records skip both the database read and
// the decryption. It is backed by ristretto, a concurrent cache with
// admission control, sized by the total content bytes held.
package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/engramdb/engram-go/pkg/storage"
)

// Config contains configuration for the record cache.
type Config struct {
	// MaxCostBytes is the cache capacity in content bytes.
	MaxCostBytes int64

	// NumCounters is the number of admission counters. Ten times the
	// expected number of cached records is a reasonable value.
	NumCounters int64
}

// RecordCache caches decrypted memory records by ID.
type RecordCache struct {
	cache *ristretto.Cache
}

// New creates a record cache with the given configuration.
func New(cfg *Config) (*RecordCache, error) {
	maxCost := cfg.MaxCostBytes
	if maxCost <= 0 {
		maxCost = 64 << 20 // 64 MiB
	}
	numCounters := cfg.NumCounters
	if numCounters <= 0 {
		numCounters = 100_000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	return &RecordCache{cache: cache}, nil
}

// Get returns the cached record for id, or (nil, false) on a miss.
func (rc *RecordCache) Get(id int64) (*storage.Memory, bool) {
	value, ok := rc.cache.Get(id)
	if !ok {
		return nil, false
	}
	memory, ok := value.(*storage.Memory)
	return memory, ok
}

// Put caches a record. Admission is best-effort; ristretto may decline
// to keep the entry.
func (rc *RecordCache) Put(memory *storage.Memory) {
	if memory == nil {
		return
	}
	cost := int64(len(memory.Content))
	if cost == 0 {
		cost = 1
	}
	rc.cache.Set(memory.ID, memory, cost)
}

// Del drops records from the cache. Callers invalidate on every write
// path so stale plaintext never outlives its row.
func (rc *RecordCache) Del(ids ...int64) {
	for _, id := range ids {
		rc.cache.Del(id)
	}
}

// Clear drops all cached records.
func (rc *RecordCache) Clear() {
	rc.cache.Clear()
}

// Close releases the cache's resources.
func (rc *RecordCache) Close() {
	rc.cache.Close()
}
