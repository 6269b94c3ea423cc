// Package core provides the main Engram client and memory engine functionality.
package core

import "time"

// RememberOption is a function type for configuring Remember operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type RememberOption func(*RememberOptions)

// RememberOptions contains configuration options for Remember operations.
type RememberOptions struct {
	// AgentID identifies the agent that owns this record.
	AgentID string

	// OrgID identifies the agent's organization.
	OrgID string

	// Tags are free-form labels attached to the record.
	Tags []string

	// Importance is the record's importance weight (0.0-1.0). Default 0.5.
	Importance float64

	// MemoryType classifies the record. Default TypeEpisodic.
	MemoryType MemoryType

	// Scope controls visibility. Default ScopePrivate.
	Scope Scope

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// TTL expires the record after the given duration (0 for no expiry).
	TTL time.Duration
}

func newRememberOptions() *RememberOptions {
	return &RememberOptions{
		Importance: 0.5,
		MemoryType: TypeEpisodic,
		Scope:      ScopePrivate,
	}
}

// WithAgentID sets the owning agent for Remember operations.
//
// Example:
//
//	record, _ := client.Remember(ctx, "content", core.WithAgentID("agent_001"))
func WithAgentID(agentID string) RememberOption {
	return func(opts *RememberOptions) {
		opts.AgentID = agentID
	}
}

// WithOrgID sets the organization for Remember operations.
func WithOrgID(orgID string) RememberOption {
	return func(opts *RememberOptions) {
		opts.OrgID = orgID
	}
}

// WithTags attaches tags for Remember operations.
//
// Example:
//
//	record, _ := client.Remember(ctx, "content", core.WithTags("preference", "coffee"))
func WithTags(tags ...string) RememberOption {
	return func(opts *RememberOptions) {
		opts.Tags = tags
	}
}

// WithImportance sets the importance weight (0.0-1.0) for Remember operations.
func WithImportance(importance float64) RememberOption {
	return func(opts *RememberOptions) {
		opts.Importance = importance
	}
}

// WithMemoryType sets the memory type for Remember operations.
//
// Example:
//
//	record, _ := client.Remember(ctx, "content", core.WithMemoryType(core.TypeSemantic))
func WithMemoryType(memoryType MemoryType) RememberOption {
	return func(opts *RememberOptions) {
		opts.MemoryType = memoryType
	}
}

// WithScope sets the visibility scope for Remember operations.
func WithScope(scope Scope) RememberOption {
	return func(opts *RememberOptions) {
		opts.Scope = scope
	}
}

// WithMetadata sets metadata for Remember operations.
//
// Example:
//
//	record, _ := client.Remember(ctx, "content",
//	    core.WithMetadata(map[string]interface{}{
//	        "source": "conversation",
//	    }),
//	)
func WithMetadata(metadata map[string]interface{}) RememberOption {
	return func(opts *RememberOptions) {
		opts.Metadata = metadata
	}
}

// WithTTL expires the record after the given duration.
//
// Expired records are invisible to Recall and removed by CleanupExpired.
func WithTTL(ttl time.Duration) RememberOption {
	return func(opts *RememberOptions) {
		opts.TTL = ttl
	}
}

// RecallOption is a function type for configuring Recall operations.
type RecallOption func(*RecallOptions)

// RecallOptions contains configuration options for Recall operations.
type RecallOptions struct {
	// AgentID is the agent performing the recall. Visibility filtering
	// is evaluated against this agent.
	AgentID string

	// OrgID is the recalling agent's organization.
	OrgID string

	// Strategy selects semantic or exact matching. Default StrategySemantic.
	Strategy RecallStrategy

	// Limit is the maximum number of records to return. Default 10.
	Limit int

	// Tags restricts results to records carrying all of these tags.
	Tags []string

	// MemoryType restricts results to one memory type.
	MemoryType MemoryType

	// MinImportance drops records below this importance.
	MinImportance float64
}

func newRecallOptions() *RecallOptions {
	return &RecallOptions{
		Strategy: StrategySemantic,
		Limit:    10,
	}
}

// WithAgentIDForRecall sets the recalling agent.
//
// Example:
//
//	result, _ := client.Recall(ctx, "coffee", core.WithAgentIDForRecall("agent_001"))
func WithAgentIDForRecall(agentID string) RecallOption {
	return func(opts *RecallOptions) {
		opts.AgentID = agentID
	}
}

// WithOrgIDForRecall sets the recalling agent's organization.
func WithOrgIDForRecall(orgID string) RecallOption {
	return func(opts *RecallOptions) {
		opts.OrgID = orgID
	}
}

// WithStrategy selects the recall strategy.
//
// Example:
//
//	result, _ := client.Recall(ctx, "error 42", core.WithStrategy(core.StrategyExact))
func WithStrategy(strategy RecallStrategy) RecallOption {
	return func(opts *RecallOptions) {
		opts.Strategy = strategy
	}
}

// WithLimit sets the maximum number of results.
func WithLimit(limit int) RecallOption {
	return func(opts *RecallOptions) {
		opts.Limit = limit
	}
}

// WithTagsForRecall restricts results to records carrying all the given tags.
func WithTagsForRecall(tags ...string) RecallOption {
	return func(opts *RecallOptions) {
		opts.Tags = tags
	}
}

// WithMemoryTypeForRecall restricts results to one memory type.
func WithMemoryTypeForRecall(memoryType MemoryType) RecallOption {
	return func(opts *RecallOptions) {
		opts.MemoryType = memoryType
	}
}

// WithMinImportance drops records below the given importance.
func WithMinImportance(min float64) RecallOption {
	return func(opts *RecallOptions) {
		opts.MinImportance = min
	}
}

// CheckpointOption is a function type for configuring Checkpoint operations.
type CheckpointOption func(*CheckpointOptions)

// CheckpointOptions contains configuration options for Checkpoint operations.
type CheckpointOptions struct {
	// AgentID identifies the agent creating the checkpoint.
	AgentID string

	// BranchName is the branch to append to. Default "main".
	BranchName string

	// Label is an optional human-readable description.
	Label string
}

func newCheckpointOptions() *CheckpointOptions {
	return &CheckpointOptions{
		BranchName: DefaultBranch,
	}
}

// WithBranch selects the branch for Checkpoint operations.
//
// Example:
//
//	cp, _ := client.Checkpoint(ctx, "thread_1", state, core.WithBranch("experiment"))
func WithBranch(branchName string) CheckpointOption {
	return func(opts *CheckpointOptions) {
		opts.BranchName = branchName
	}
}

// WithLabel attaches a description to the checkpoint.
func WithLabel(label string) CheckpointOption {
	return func(opts *CheckpointOptions) {
		opts.Label = label
	}
}

// WithAgentIDForCheckpoint sets the creating agent.
func WithAgentIDForCheckpoint(agentID string) CheckpointOption {
	return func(opts *CheckpointOptions) {
		opts.AgentID = agentID
	}
}

// MergeOption is a function type for configuring Merge operations.
type MergeOption func(*MergeOptions)

// MergeOptions contains configuration options for Merge operations.
type MergeOptions struct {
	// AgentID identifies the agent performing the merge.
	AgentID string

	// Label is an optional description of the merge checkpoint.
	Label string
}

// WithLabelForMerge attaches a description to the merge checkpoint.
func WithLabelForMerge(label string) MergeOption {
	return func(opts *MergeOptions) {
		opts.Label = label
	}
}

// WithAgentIDForMerge sets the merging agent.
func WithAgentIDForMerge(agentID string) MergeOption {
	return func(opts *MergeOptions) {
		opts.AgentID = agentID
	}
}

// ReplayOption is a function type for configuring Replay operations.
type ReplayOption func(*ReplayOptions)

// ReplayOptions contains configuration options for Replay operations.
type ReplayOptions struct {
	// CheckpointID selects an exact checkpoint. Zero resolves the
	// branch head instead.
	CheckpointID int64

	// BranchName is the branch whose head to resolve when no
	// checkpoint ID is given. Default "main".
	BranchName string
}

func newReplayOptions() *ReplayOptions {
	return &ReplayOptions{
		BranchName: DefaultBranch,
	}
}

// WithCheckpointID replays an exact checkpoint instead of a branch head.
//
// Example:
//
//	cp, _ := client.Replay(ctx, "thread_1", core.WithCheckpointID(cp2.ID))
func WithCheckpointID(id int64) ReplayOption {
	return func(opts *ReplayOptions) {
		opts.CheckpointID = id
	}
}

// WithBranchForReplay selects the branch whose head to replay.
func WithBranchForReplay(branchName string) ReplayOption {
	return func(opts *ReplayOptions) {
		opts.BranchName = branchName
	}
}
