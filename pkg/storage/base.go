// Package storage provides interfaces and types for relational storage backends.
//
// It defines the Store interface that all storage implementations must satisfy,
// along with the record and checkpoint row types. The relational store is the
// source of truth for all memory data; vector indexes are derived from it.
package storage

import (
	"context"
	"time"
)

// Memory represents a memory record row.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Record structure. When encryption
// is enabled, Content and the serialized metadata are stored in encrypted form;
// ContentHash is always computed over the plaintext.
type Memory struct {
	// ID is the unique identifier of the memory.
	ID int64

	// AgentID identifies the agent that owns this memory.
	AgentID string

	// OrgID identifies the organization the owning agent belongs to.
	OrgID string

	// Content is the text content of the memory.
	Content string

	// ContentHash is the hex SHA-256 digest of the plaintext content.
	ContentHash string

	// Embedding is the vector embedding for similarity search.
	// Nil when the embedding has not been computed or is stale.
	Embedding []float64

	// EmbeddingStale marks records whose content changed after the
	// embedding was computed.
	EmbeddingStale bool

	// Tags are free-form labels attached to the memory.
	Tags []string

	// Importance is the memory's importance weight (0.0-1.0).
	Importance float64

	// MemoryType classifies the memory (episodic, semantic, procedural, working).
	MemoryType string

	// Scope controls visibility (private, shared, global).
	Scope string

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// ExpiresAt is when the memory expires (nil for no expiry).
	ExpiresAt *time.Time

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// UpdatedAt is when the memory was last updated.
	UpdatedAt time.Time

	// Score is the relevance score from recall operations.
	// It is computed at query time and never persisted.
	Score float64
}

// Expired reports whether the memory's expiry has passed.
func (m *Memory) Expired() bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(time.Now().UTC())
}

// Checkpoint represents a saved point in a thread's history.
//
// Checkpoints on the same branch form a chain through ParentID. A merge
// checkpoint additionally records the head of the source branch in
// MergeParentID, giving it two parents.
type Checkpoint struct {
	// ID is the unique identifier of the checkpoint.
	ID int64

	// ThreadID identifies the conversation thread.
	ThreadID string

	// AgentID identifies the agent that created the checkpoint.
	AgentID string

	// BranchName is the branch this checkpoint belongs to.
	BranchName string

	// ParentID is the previous checkpoint on the branch (nil for the first).
	ParentID *int64

	// MergeParentID is the source branch head for merge checkpoints (nil otherwise).
	MergeParentID *int64

	// StateSnapshot is the opaque serialized state at this point.
	StateSnapshot []byte

	// Label is an optional human-readable description.
	Label string

	// CreatedAt is when the checkpoint was created.
	CreatedAt time.Time
}

// Filter narrows iteration over memory records.
//
// Zero-valued fields match everything. Tags are matched as a subset:
// a record matches when it carries every tag in the filter.
type Filter struct {
	// AgentID restricts to records owned by this agent.
	AgentID string

	// OrgID restricts to records in this organization.
	OrgID string

	// Scope restricts to records with this scope.
	Scope string

	// MemoryType restricts to records of this type.
	MemoryType string

	// Tags restricts to records carrying all of these tags.
	Tags []string

	// IncludeExpired includes records whose ExpiresAt has passed.
	IncludeExpired bool
}

// Store defines the interface for relational storage backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement this
// interface. Absence is reported as (nil, nil) or empty results, not as an
// error; callers map absence to their own not-found errors.
type Store interface {
	// InsertMemory inserts a memory record.
	InsertMemory(ctx context.Context, memory *Memory) error

	// GetMemories retrieves records by ID. Missing IDs are omitted from
	// the result; the result order follows the input order.
	GetMemories(ctx context.Context, ids []int64) ([]*Memory, error)

	// DeleteMemories deletes records by ID and returns the IDs actually
	// deleted.
	DeleteMemories(ctx context.Context, ids []int64) ([]int64, error)

	// UpdateMemoryContent replaces a record's content and content hash,
	// clears its embedding, and marks the embedding stale.
	UpdateMemoryContent(ctx context.Context, id int64, content, contentHash string) error

	// UpdateMemoryEmbedding stores a freshly computed embedding and
	// clears the stale flag.
	UpdateMemoryEmbedding(ctx context.Context, id int64, embedding []float64) error

	// UpdateMemoryScope changes a record's visibility scope.
	UpdateMemoryScope(ctx context.Context, id int64, scope string) error

	// UpdateMemoryOwner transfers a record to another agent and organization.
	UpdateMemoryOwner(ctx context.Context, id int64, agentID, orgID string) error

	// UpdateMemoryImportance sets a record's importance weight.
	UpdateMemoryImportance(ctx context.Context, id int64, importance float64) error

	// FindByContentHash returns the first record owned by agentID with
	// the given content hash, or (nil, nil) when none exists.
	FindByContentHash(ctx context.Context, agentID, contentHash string) (*Memory, error)

	// IterateMemories streams records matching the filter to fn in
	// ascending ID order. Iteration stops when fn returns false.
	IterateMemories(ctx context.Context, filter *Filter, fn func(*Memory) bool) error

	// ListStaleEmbeddings returns IDs of records whose embeddings need
	// recomputing, up to limit (0 for no limit).
	ListStaleEmbeddings(ctx context.Context, limit int) ([]int64, error)

	// DeleteExpired removes records whose expiry has passed and returns
	// the IDs removed.
	DeleteExpired(ctx context.Context, now time.Time) ([]int64, error)

	// InsertCheckpoint inserts a checkpoint row.
	InsertCheckpoint(ctx context.Context, cp *Checkpoint) error

	// GetCheckpoint retrieves a checkpoint by ID, or (nil, nil) when it
	// does not exist.
	GetCheckpoint(ctx context.Context, id int64) (*Checkpoint, error)

	// LatestCheckpoint returns the newest checkpoint on a branch, or
	// (nil, nil) when the branch has none.
	LatestCheckpoint(ctx context.Context, threadID, branchName string) (*Checkpoint, error)

	// ListCheckpoints returns all checkpoints for a thread, newest
	// first. An empty branchName lists every branch.
	ListCheckpoints(ctx context.Context, threadID, branchName string) ([]*Checkpoint, error)

	// ThreadExists reports whether any checkpoint exists for the thread.
	ThreadExists(ctx context.Context, threadID string) (bool, error)

	// DeleteThread removes all checkpoints for a thread and returns the
	// number removed.
	DeleteThread(ctx context.Context, threadID string) (int64, error)

	// Reset removes all memories and checkpoints.
	Reset(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
