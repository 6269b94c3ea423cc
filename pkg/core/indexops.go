// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"context"
	"errors"
	"io/fs"

	"github.com/engramdb/engram-go/pkg/index"
	"github.com/engramdb/engram-go/pkg/storage"
)

// SaveIndex persists the vector index to the configured path.
//
// Backends that persist on every write treat this as a no-op. The
// relational store stays the source of truth either way; a saved index
// is an optimization, never the only copy of the vectors.
func (c *Client) SaveIndex(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config.Index.Path == "" {
		return NewEngineErrorRef("SaveIndex", "no index path configured", ErrInvalidConfig)
	}
	if err := c.index.Save(ctx, c.config.Index.Path); err != nil {
		return NewEngineError("SaveIndex", err)
	}
	return nil
}

// LoadIndex restores the vector index from the configured path.
//
// A missing file is not an error; the index simply starts empty.
// Corrupt index files trigger an automatic rebuild from the store
// unless auto-rebuild is disabled, in which case ErrIndexCorrupt is
// returned and the caller decides.
func (c *Client) LoadIndex(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Index.Path == "" {
		return NewEngineErrorRef("LoadIndex", "no index path configured", ErrInvalidConfig)
	}

	err := c.index.Load(ctx, c.config.Index.Path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if errors.Is(err, index.ErrCorrupt) {
		if c.config.Index.DisableAutoRebuild {
			return NewEngineError("LoadIndex", errors.Join(ErrIndexCorrupt, err))
		}
		c.logger.Warn("index files corrupt, rebuilding from store", "path", c.config.Index.Path, "error", err)
		if _, err := c.rebuildIndexLocked(ctx); err != nil {
			return NewEngineError("LoadIndex", err)
		}
		return nil
	}
	return NewEngineError("LoadIndex", err)
}

// RebuildIndex drops the vector index and repopulates it from the
// store. Expired records and records with stale embeddings are skipped.
//
// Returns the number of vectors indexed.
func (c *Client) RebuildIndex(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, err := c.rebuildIndexLocked(ctx)
	if err != nil {
		return 0, NewEngineError("RebuildIndex", err)
	}
	return count, nil
}

func (c *Client) rebuildIndexLocked(ctx context.Context) (int, error) {
	if err := c.index.Clear(ctx); err != nil {
		return 0, err
	}

	var count int
	var addErr error
	err := c.store.IterateMemories(ctx, &storage.Filter{}, func(memory *storage.Memory) bool {
		if memory.Embedding == nil {
			return true
		}
		if err := c.index.Add(ctx, memory.ID, memory.Embedding); err != nil {
			addErr = err
			return false
		}
		count++
		return true
	})
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	if addErr != nil {
		return 0, addErr
	}
	return count, nil
}

// IndexSize returns the number of vectors currently in the index.
func (c *Client) IndexSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Size()
}
