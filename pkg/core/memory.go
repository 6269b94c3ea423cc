// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/engramdb/engram-go/pkg/security"
	"github.com/engramdb/engram-go/pkg/storage"
)

// Remember stores a new memory record.
//
// The content is validated, hashed, embedded, inserted into the store,
// and added to the vector index, in that order. A failed embedding
// leaves no partial write: with the default failure policy the
// operation fails before anything is stored, and with EmbedFailStale
// the record is stored without an embedding and marked stale.
//
// The configured dedup policy controls what happens when a record with
// the same content hash already exists for the agent: DedupAllow (the
// default) stores a new record anyway, DedupReject returns ErrDuplicate.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - content: Memory content (must be non-empty)
//   - opts: Optional settings (agent, tags, importance, scope, TTL, ...)
//
// Returns the stored record, or an error.
//
// Example:
//
//	record, err := client.Remember(ctx, "User prefers dark roast coffee",
//	    core.WithAgentID("agent_001"),
//	    core.WithTags("preference"),
//	    core.WithImportance(0.8),
//	)
func (c *Client) Remember(ctx context.Context, content string, opts ...RememberOption) (*Record, error) {
	options := newRememberOptions()
	for _, opt := range opts {
		opt(options)
	}

	if content == "" {
		return nil, NewEngineErrorRef("Remember", "empty content", ErrInvalidArgument)
	}
	if options.Importance < 0 || options.Importance > 1 {
		return nil, NewEngineErrorRef("Remember", "importance out of range", ErrInvalidArgument)
	}
	if !options.MemoryType.Valid() {
		return nil, NewEngineErrorRef("Remember", "memory type "+string(options.MemoryType), ErrInvalidArgument)
	}
	if !options.Scope.Valid() {
		return nil, NewEngineErrorRef("Remember", "scope "+string(options.Scope), ErrInvalidArgument)
	}

	agentID := c.agentOrDefault(options.AgentID)
	orgID := c.orgOrDefault(options.OrgID)
	contentHash := security.Hash(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if c.dedupPolicy() == DedupReject {
		existing, err := c.store.FindByContentHash(opCtx, agentID, contentHash)
		if err != nil {
			return nil, NewEngineError("Remember", err)
		}
		if existing != nil {
			return nil, NewEngineErrorRef("Remember", "content hash "+contentHash, ErrDuplicate)
		}
	}

	embedding, err := c.embedContent(opCtx, content)
	if err != nil {
		if c.config.Embedder.FailurePolicy != EmbedFailStale {
			return nil, NewEngineError("Remember", errors.Join(ErrEmbeddingUnavailable, err))
		}
		c.logger.Warn("embedding failed, storing record as stale", "error", err)
		embedding = nil
	}

	now := time.Now().UTC()
	record := &Record{
		ID:          c.newID(),
		AgentID:     agentID,
		OrgID:       orgID,
		Content:     content,
		ContentHash: contentHash,
		Embedding:   embedding,
		Tags:        options.Tags,
		Importance:  options.Importance,
		MemoryType:  options.MemoryType,
		Scope:       options.Scope,
		Metadata:    options.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if options.TTL > 0 {
		expiresAt := now.Add(options.TTL)
		record.ExpiresAt = &expiresAt
	}

	memory, err := c.toStorageMemory(record)
	if err != nil {
		return nil, NewEngineError("Remember", err)
	}

	if err := c.store.InsertMemory(opCtx, memory); err != nil {
		return nil, NewEngineError("Remember", errors.Join(ErrStorage, err))
	}

	if embedding != nil {
		if err := c.index.Add(opCtx, record.ID, embedding); err != nil {
			// The store insert already succeeded; the index can be
			// rebuilt, so report and continue.
			c.logger.Error("index add failed", "id", record.ID, "error", err)
		}
	}

	if c.recordCache != nil {
		plain := *memory
		plain.Content = record.Content
		plain.Metadata = record.Metadata
		c.recordCache.Put(&plain)
	}

	return record, nil
}

// Get retrieves records by ID.
//
// Missing IDs are silently omitted from the result; asking for nothing
// returns nothing. The result order follows the input order.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ids: Record IDs to fetch
//
// Returns the found records.
func (c *Client) Get(ctx context.Context, ids []int64) ([]*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	memories, err := c.getMemories(ctx, ids)
	if err != nil {
		return nil, NewEngineError("Get", err)
	}

	records := make([]*Record, 0, len(memories))
	for _, memory := range memories {
		records = append(records, fromStorageMemory(memory))
	}
	return records, nil
}

// Update replaces a record's content.
//
// The content hash is recomputed and the stored embedding is cleared
// and marked stale. The engine then re-embeds immediately; if that
// fails, the record stays stale and is picked up by the next
// ReembedStale pass. Stale records are invisible to semantic recall
// until re-embedded.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Record to update
//   - newContent: Replacement content (must be non-empty)
//
// Returns the updated record, or ErrNotFound when the record does not exist.
func (c *Client) Update(ctx context.Context, id int64, newContent string) (*Record, error) {
	if newContent == "" {
		return nil, NewEngineErrorRef("Update", "empty content", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	existing, err := c.store.GetMemories(opCtx, []int64{id})
	if err != nil {
		return nil, NewEngineError("Update", err)
	}
	if len(existing) == 0 {
		return nil, NewEngineErrorRef("Update", refID(id), ErrNotFound)
	}

	contentHash := security.Hash(newContent)
	storedContent := newContent
	if c.encryptor != nil {
		storedContent, err = c.encryptor.EncryptString(newContent)
		if err != nil {
			return nil, NewEngineError("Update", err)
		}
	}

	if err := c.store.UpdateMemoryContent(opCtx, id, storedContent, contentHash); err != nil {
		return nil, NewEngineError("Update", errors.Join(ErrStorage, err))
	}

	if err := c.index.Remove(opCtx, id); err != nil {
		c.logger.Error("index remove failed", "id", id, "error", err)
	}
	if c.recordCache != nil {
		c.recordCache.Del(id)
	}

	// Re-embed immediately; on failure the record stays stale and the
	// next ReembedStale pass retries.
	embedding, embedErr := c.embedContent(opCtx, newContent)
	if embedErr != nil {
		c.logger.Warn("re-embedding failed, record left stale", "id", id, "error", embedErr)
	} else {
		if err := c.store.UpdateMemoryEmbedding(opCtx, id, embedding); err != nil {
			return nil, NewEngineError("Update", errors.Join(ErrStorage, err))
		}
		if err := c.index.Add(opCtx, id, embedding); err != nil {
			c.logger.Error("index add failed", "id", id, "error", err)
		}
	}

	memories, err := c.getMemories(opCtx, []int64{id})
	if err != nil {
		return nil, NewEngineError("Update", err)
	}
	if len(memories) == 0 {
		return nil, NewEngineErrorRef("Update", refID(id), ErrNotFound)
	}
	return fromStorageMemory(memories[0]), nil
}

// Forget deletes records.
//
// Deletion is hard: the rows are removed, the vectors are removed from
// the index synchronously, and the cache entries are dropped. The
// operation is idempotent; IDs that do not exist appear in neither the
// Forgotten list nor the Errors list.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ids: Record IDs to delete
//
// Returns per-record outcomes. The error return is reserved for
// failures that prevent the operation from running at all.
func (c *Client) Forget(ctx context.Context, ids []int64) (*ForgetResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	result := &ForgetResult{}
	for _, id := range ids {
		deleted, err := c.store.DeleteMemories(opCtx, []int64{id})
		if err != nil {
			result.Errors = append(result.Errors, ForgetError{ID: id, Err: err})
			continue
		}
		if len(deleted) == 0 {
			continue
		}

		if err := c.index.Remove(opCtx, id); err != nil {
			c.logger.Error("index remove failed", "id", id, "error", err)
		}
		if c.recordCache != nil {
			c.recordCache.Del(id)
		}
		result.Forgotten = append(result.Forgotten, id)
	}

	return result, nil
}

// Share changes a record's visibility scope.
//
// The change takes effect on all subsequent reads; recall evaluates
// visibility at query time, never at write time.
//
// Parameters:
//   - ctx: Context for cancellation
//   - id: Record to reshare
//   - scope: New scope (ScopePrivate, ScopeShared, ScopeGlobal)
//
// Returns the updated record, or ErrNotFound when the record does not exist.
func (c *Client) Share(ctx context.Context, id int64, scope Scope) (*Record, error) {
	if !scope.Valid() {
		return nil, NewEngineErrorRef("Share", "scope "+string(scope), ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	existing, err := c.store.GetMemories(opCtx, []int64{id})
	if err != nil {
		return nil, NewEngineError("Share", err)
	}
	if len(existing) == 0 {
		return nil, NewEngineErrorRef("Share", refID(id), ErrNotFound)
	}

	if err := c.store.UpdateMemoryScope(opCtx, id, string(scope)); err != nil {
		return nil, NewEngineError("Share", errors.Join(ErrStorage, err))
	}
	if c.recordCache != nil {
		c.recordCache.Del(id)
	}

	memories, err := c.getMemories(opCtx, []int64{id})
	if err != nil {
		return nil, NewEngineError("Share", err)
	}
	if len(memories) == 0 {
		return nil, NewEngineErrorRef("Share", refID(id), ErrNotFound)
	}
	return fromStorageMemory(memories[0]), nil
}

// Delegate transfers ownership of a record set to another agent.
//
// Each record keeps its organization; only the owning agent changes.
// Missing IDs are reported in the result, not as an error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ids: Records to transfer
//   - newAgentID: The receiving agent (must be non-empty)
//
// Returns per-record outcomes.
func (c *Client) Delegate(ctx context.Context, ids []int64, newAgentID string) (*DelegateResult, error) {
	if newAgentID == "" {
		return nil, NewEngineErrorRef("Delegate", "empty agent id", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	result := &DelegateResult{}
	for _, id := range ids {
		memories, err := c.store.GetMemories(opCtx, []int64{id})
		if err != nil {
			return nil, NewEngineError("Delegate", err)
		}
		if len(memories) == 0 {
			result.Missing = append(result.Missing, id)
			continue
		}

		if err := c.store.UpdateMemoryOwner(opCtx, id, newAgentID, memories[0].OrgID); err != nil {
			return nil, NewEngineError("Delegate", errors.Join(ErrStorage, err))
		}
		if c.recordCache != nil {
			c.recordCache.Del(id)
		}
		result.Transferred = append(result.Transferred, id)
	}

	return result, nil
}

// Verify checks a record's integrity.
//
// The hash of the current plaintext content is recomputed and compared
// in constant time against the hash recorded at write time. A mismatch
// is reported both in the result and as an error wrapping ErrIntegrity.
//
// Parameters:
//   - ctx: Context for cancellation
//   - id: Record to verify
//
// Returns the verification result. On mismatch the result is returned
// together with the ErrIntegrity error.
func (c *Client) Verify(ctx context.Context, id int64) (*VerifyResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	memories, err := c.getMemories(ctx, []int64{id})
	if err != nil {
		return nil, NewEngineError("Verify", err)
	}
	if len(memories) == 0 {
		return nil, NewEngineErrorRef("Verify", refID(id), ErrNotFound)
	}

	memory := memories[0]
	computed := security.Hash(memory.Content)
	result := &VerifyResult{
		ID:           id,
		Valid:        security.HashEqual(memory.ContentHash, computed),
		StoredHash:   memory.ContentHash,
		ComputedHash: computed,
	}

	if !result.Valid {
		return result, NewEngineErrorRef("Verify", refID(id), ErrIntegrity)
	}
	return result, nil
}

// VerifyAll sweeps all records owned by an agent and checks their
// integrity. Unlike Verify it never fails on a mismatch; the report
// carries the first broken record instead.
//
// Parameters:
//   - ctx: Context for cancellation
//   - agentID: Owner whose records to check (empty uses the default agent)
//
// Returns counts and the lowest-ID broken record, if any.
func (c *Client) VerifyAll(ctx context.Context, agentID string) (*VerifyAllResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	agentID = c.agentOrDefault(agentID)
	result := &VerifyAllResult{}

	var decryptErr error
	err := c.store.IterateMemories(ctx, &storage.Filter{AgentID: agentID, IncludeExpired: true}, func(memory *storage.Memory) bool {
		if err := c.decryptMemory(memory); err != nil {
			decryptErr = err
			return false
		}
		result.Total++
		if security.HashEqual(memory.ContentHash, security.Hash(memory.Content)) {
			result.Verified++
		} else if result.FirstBroken == nil {
			id := memory.ID
			result.FirstBroken = &id
		}
		return true
	})
	if err != nil {
		return nil, NewEngineError("VerifyAll", err)
	}
	if decryptErr != nil {
		return nil, NewEngineError("VerifyAll", decryptErr)
	}

	return result, nil
}

// CleanupExpired removes records whose TTL has passed.
//
// Expired records are already invisible to recall; this reclaims their
// rows and index entries.
//
// Returns the number of records removed.
func (c *Client) CleanupExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	ids, err := c.store.DeleteExpired(opCtx, time.Now().UTC())
	if err != nil {
		return 0, NewEngineError("CleanupExpired", errors.Join(ErrStorage, err))
	}

	for _, id := range ids {
		if err := c.index.Remove(opCtx, id); err != nil {
			c.logger.Error("index remove failed", "id", id, "error", err)
		}
	}
	if c.recordCache != nil {
		c.recordCache.Del(ids...)
	}

	return len(ids), nil
}

// DecayPass lowers the importance of all records owned by an agent.
//
// Each record's importance is multiplied by (1 - rate). The pass is a
// maintenance operation meant to be run periodically so stale memories
// gradually lose recall weight.
//
// Parameters:
//   - ctx: Context for cancellation
//   - agentID: Owner whose records to decay (empty uses the default agent)
//   - rate: Decay rate in (0, 1]
//
// Returns the number of records whose importance changed.
func (c *Client) DecayPass(ctx context.Context, agentID string, rate float64) (int, error) {
	if rate <= 0 || rate > 1 {
		return 0, NewEngineErrorRef("DecayPass", "rate out of range", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	agentID = c.agentOrDefault(agentID)

	type decayItem struct {
		id         int64
		importance float64
	}
	var items []decayItem

	err := c.store.IterateMemories(ctx, &storage.Filter{AgentID: agentID, IncludeExpired: true}, func(memory *storage.Memory) bool {
		if memory.Importance > 0 {
			items = append(items, decayItem{id: memory.ID, importance: memory.Importance * (1 - rate)})
		}
		return true
	})
	if err != nil {
		return 0, NewEngineError("DecayPass", err)
	}

	for _, item := range items {
		if err := c.store.UpdateMemoryImportance(ctx, item.id, item.importance); err != nil {
			return 0, NewEngineError("DecayPass", errors.Join(ErrStorage, err))
		}
		if c.recordCache != nil {
			c.recordCache.Del(item.id)
		}
	}

	return len(items), nil
}

// ReembedStale recomputes embeddings for records marked stale.
//
// Records become stale when their content is updated while the
// embedding provider is unavailable. Each successfully re-embedded
// record is also re-added to the vector index.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum number of records to process (0 for all)
//
// Returns the number of records re-embedded and the first error
// encountered; remaining records are still attempted.
func (c *Client) ReembedStale(ctx context.Context, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	ids, err := c.store.ListStaleEmbeddings(opCtx, limit)
	if err != nil {
		return 0, NewEngineError("ReembedStale", errors.Join(ErrStorage, err))
	}

	var count int
	var firstErr error
	for _, id := range ids {
		memories, err := c.getMemories(opCtx, []int64{id})
		if err != nil || len(memories) == 0 {
			if err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}

		embedding, err := c.embedContent(opCtx, memories[0].Content)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Join(ErrEmbeddingUnavailable, err)
			}
			continue
		}

		if err := c.store.UpdateMemoryEmbedding(opCtx, id, embedding); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := c.index.Add(opCtx, id, embedding); err != nil {
			c.logger.Error("index add failed", "id", id, "error", err)
		}
		if c.recordCache != nil {
			c.recordCache.Del(id)
		}
		count++
	}

	return count, NewEngineError("ReembedStale", firstErr)
}

// Reset removes all records and checkpoints and clears the index and
// cache. Intended for tests and for tearing down throwaway deployments.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Reset(ctx); err != nil {
		return NewEngineError("Reset", errors.Join(ErrStorage, err))
	}
	if err := c.index.Clear(ctx); err != nil {
		return NewEngineError("Reset", err)
	}
	if c.recordCache != nil {
		c.recordCache.Clear()
	}
	return nil
}

// embedContent embeds text and validates the resulting dimension.
func (c *Client) embedContent(ctx context.Context, content string) ([]float64, error) {
	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	if len(embedding) != c.config.Embedder.Dimensions {
		return nil, &EngineError{
			Op:  "embed",
			Ref: "dimension mismatch",
			Err: ErrInvalidConfig,
		}
	}
	return embedding, nil
}

// getMemories joins IDs against the cache and the store, decrypting
// misses and filling the cache. Missing IDs are omitted.
func (c *Client) getMemories(ctx context.Context, ids []int64) ([]*storage.Memory, error) {
	found := make(map[int64]*storage.Memory, len(ids))
	var misses []int64

	if c.recordCache != nil {
		for _, id := range ids {
			if memory, ok := c.recordCache.Get(id); ok {
				found[id] = memory
			} else {
				misses = append(misses, id)
			}
		}
	} else {
		misses = ids
	}

	if len(misses) > 0 {
		memories, err := c.store.GetMemories(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, memory := range memories {
			if err := c.decryptMemory(memory); err != nil {
				return nil, err
			}
			found[memory.ID] = memory
			if c.recordCache != nil {
				c.recordCache.Put(memory)
			}
		}
	}

	result := make([]*storage.Memory, 0, len(found))
	for _, id := range ids {
		if memory, ok := found[id]; ok {
			// Copy so callers can attach scores without mutating
			// the cached entry.
			m := *memory
			result = append(result, &m)
		}
	}
	return result, nil
}

// dedupPolicy returns the configured dedup policy, defaulting to allow.
func (c *Client) dedupPolicy() DedupPolicy {
	if c.config.Dedup == "" {
		return DedupAllow
	}
	return c.config.Dedup
}
