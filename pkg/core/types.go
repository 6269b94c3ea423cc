// Package core provides the main Engram client and memory engine functionality.
package core

import "time"

// Record represents a single memory stored in the engine.
//
// A record contains:
//   - Content: The text content of the memory
//   - ContentHash: SHA-256 digest of the plaintext content, used for
//     duplicate detection and integrity verification
//   - Embedding: Vector representation for similarity search
//   - Scope: Visibility across agents
//
// Example:
//
//	record := &core.Record{
//	    ID:      1234567890,
//	    AgentID: "agent_001",
//	    Content: "User prefers dark roast coffee",
//	    Tags:    []string{"preference"},
//	}
type Record struct {
	// ID is the unique identifier of the record.
	ID int64 `json:"id"`

	// AgentID identifies the agent that owns this record.
	AgentID string `json:"agent_id"`

	// OrgID identifies the organization the owning agent belongs to.
	OrgID string `json:"org_id,omitempty"`

	// Content is the text content of the memory.
	Content string `json:"content"`

	// ContentHash is the hex SHA-256 digest of the plaintext content.
	ContentHash string `json:"content_hash"`

	// Embedding is the vector embedding for similarity search.
	// Omitted from JSON to reduce payload size. Nil while the
	// embedding is stale after a content update.
	Embedding []float64 `json:"embedding,omitempty"`

	// Tags are free-form labels used for recall filtering.
	Tags []string `json:"tags,omitempty"`

	// Importance is the record's importance weight (0.0-1.0).
	Importance float64 `json:"importance"`

	// MemoryType classifies the record. See MemoryType constants.
	MemoryType MemoryType `json:"memory_type"`

	// Scope controls visibility. See Scope constants.
	Scope Scope `json:"scope"`

	// Metadata contains additional structured information about the record.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// ExpiresAt is when the record expires (nil for no expiry).
	// Expired records are invisible to recall and removed by
	// CleanupExpired.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	// Score is the relevance score from recall operations (0.0-1.0).
	// Higher scores indicate better matches.
	Score float64 `json:"score,omitempty"`
}

// Checkpoint represents a saved point in a thread's history.
//
// Checkpoints on the same branch form a chain through ParentID. A
// merge checkpoint has a second parent, MergeParentID, recording the
// head of the branch that was merged in.
type Checkpoint struct {
	// ID is the unique identifier of the checkpoint.
	ID int64 `json:"id"`

	// ThreadID identifies the conversation thread.
	ThreadID string `json:"thread_id"`

	// AgentID identifies the agent that created the checkpoint.
	AgentID string `json:"agent_id,omitempty"`

	// BranchName is the branch this checkpoint belongs to.
	BranchName string `json:"branch_name"`

	// ParentID is the previous checkpoint on the branch (nil for the first).
	ParentID *int64 `json:"parent_id,omitempty"`

	// MergeParentID is the source branch head for merge checkpoints.
	MergeParentID *int64 `json:"merge_parent_id,omitempty"`

	// StateSnapshot is the opaque serialized state at this point.
	// The engine stores it verbatim and never interprets it.
	StateSnapshot []byte `json:"state_snapshot,omitempty"`

	// Label is an optional human-readable description.
	Label string `json:"label,omitempty"`

	// CreatedAt is when the checkpoint was created.
	CreatedAt time.Time `json:"created_at"`
}

// MemoryType classifies what kind of memory a record holds.
type MemoryType string

const (
	// TypeEpisodic records a specific event or interaction.
	TypeEpisodic MemoryType = "episodic"

	// TypeSemantic records a fact or piece of knowledge.
	TypeSemantic MemoryType = "semantic"

	// TypeProcedural records how to perform a task.
	TypeProcedural MemoryType = "procedural"

	// TypeWorking records short-lived task state.
	TypeWorking MemoryType = "working"
)

// Valid reports whether the memory type is one of the defined constants.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeEpisodic, TypeSemantic, TypeProcedural, TypeWorking:
		return true
	}
	return false
}

// Scope defines the visibility of a record across agents.
//
// Scopes control which agents can see a record during recall:
//   - ScopePrivate: only the owning agent
//   - ScopeShared: agents in the owner's organization
//   - ScopeGlobal: every agent
type Scope string

const (
	// ScopePrivate makes the record visible only to the owning agent.
	ScopePrivate Scope = "private"

	// ScopeShared makes the record visible to agents in the owner's organization.
	ScopeShared Scope = "shared"

	// ScopeGlobal makes the record visible to all agents.
	ScopeGlobal Scope = "global"
)

// Valid reports whether the scope is one of the defined constants.
func (s Scope) Valid() bool {
	switch s {
	case ScopePrivate, ScopeShared, ScopeGlobal:
		return true
	}
	return false
}

// RecallStrategy selects how Recall matches records.
type RecallStrategy string

const (
	// StrategySemantic ranks records by embedding similarity.
	StrategySemantic RecallStrategy = "semantic"

	// StrategyExact matches records by case-insensitive substring.
	StrategyExact RecallStrategy = "exact"
)

// RecallResult contains the results of a recall operation.
type RecallResult struct {
	// Records is the list of matching records, best first.
	Records []*Record

	// Total is the number of records that matched before the limit
	// was applied.
	Total int
}

// ForgetError records a per-record failure during Forget.
type ForgetError struct {
	// ID is the record that failed.
	ID int64

	// Err is what went wrong.
	Err error
}

// ForgetResult contains per-record outcomes of a Forget operation.
//
// IDs that did not exist appear in neither list; forgetting them twice
// is not an error.
type ForgetResult struct {
	// Forgotten lists the IDs that were deleted.
	Forgotten []int64

	// Errors lists records that could not be deleted.
	Errors []ForgetError
}

// VerifyResult reports an integrity check of a single record.
type VerifyResult struct {
	// ID is the record that was checked.
	ID int64

	// Valid is true when the stored hash matches the recomputed hash.
	Valid bool

	// StoredHash is the hash recorded at write time.
	StoredHash string

	// ComputedHash is the hash recomputed from current content.
	ComputedHash string
}

// VerifyAllResult reports a bulk integrity sweep.
type VerifyAllResult struct {
	// Total is the number of records checked.
	Total int

	// Verified is the number of records whose hashes matched.
	Verified int

	// FirstBroken is the lowest-ID record that failed, nil when all passed.
	FirstBroken *int64
}

// DelegateResult contains per-record outcomes of a Delegate operation.
type DelegateResult struct {
	// Transferred lists the IDs whose ownership changed.
	Transferred []int64

	// Missing lists the IDs that did not exist.
	Missing []int64
}
