// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Checkpoint saves an opaque state snapshot on a thread's branch.
//
// The new checkpoint's parent is the current head of the branch, so
// repeated checkpoints on the same branch form a linear chain. Creation
// per thread is serialized; two concurrent checkpoints on the same
// thread cannot both claim the same parent.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - threadID: Conversation thread (must be non-empty)
//   - state: Opaque serialized state to snapshot
//   - opts: Optional settings (branch, label, agent)
//
// Returns the created checkpoint.
//
// Example:
//
//	cp, err := client.Checkpoint(ctx, "thread_42", snapshot,
//	    core.WithBranch("experiment"),
//	    core.WithLabel("before tool call"),
//	)
func (c *Client) Checkpoint(ctx context.Context, threadID string, state []byte, opts ...CheckpointOption) (*Checkpoint, error) {
	options := newCheckpointOptions()
	for _, opt := range opts {
		opt(options)
	}

	if threadID == "" {
		return nil, NewEngineErrorRef("Checkpoint", "empty thread id", ErrInvalidArgument)
	}
	if options.BranchName == "" {
		return nil, NewEngineErrorRef("Checkpoint", "empty branch name", ErrInvalidArgument)
	}

	lock := c.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	head, err := c.store.LatestCheckpoint(opCtx, threadID, options.BranchName)
	if err != nil {
		return nil, NewEngineError("Checkpoint", errors.Join(ErrStorage, err))
	}

	cp := &Checkpoint{
		ID:            c.newID(),
		ThreadID:      threadID,
		AgentID:       c.agentOrDefault(options.AgentID),
		BranchName:    options.BranchName,
		StateSnapshot: state,
		Label:         options.Label,
		CreatedAt:     time.Now().UTC(),
	}
	if head != nil {
		parentID := head.ID
		cp.ParentID = &parentID
	}

	if err := c.store.InsertCheckpoint(opCtx, toStorageCheckpoint(cp)); err != nil {
		return nil, NewEngineError("Checkpoint", errors.Join(ErrStorage, err))
	}
	return cp, nil
}

// Branch starts a new branch from an existing checkpoint.
//
// The new branch's first checkpoint copies the source checkpoint's
// snapshot and points back at it through ParentID, so the source
// branch's history stays reachable from the new branch.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - threadID: Thread the source checkpoint belongs to
//   - fromCheckpointID: Checkpoint to branch from
//   - newBranch: Name of the new branch (must be non-empty)
//
// Returns the first checkpoint of the new branch, ErrNotFound when the
// source checkpoint does not exist on the thread, or ErrInvalidArgument
// when the branch name is already in use on the thread.
func (c *Client) Branch(ctx context.Context, threadID string, fromCheckpointID int64, newBranch string) (*Checkpoint, error) {
	if threadID == "" {
		return nil, NewEngineErrorRef("Branch", "empty thread id", ErrInvalidArgument)
	}
	if newBranch == "" {
		return nil, NewEngineErrorRef("Branch", "empty branch name", ErrInvalidArgument)
	}

	lock := c.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	source, err := c.store.GetCheckpoint(opCtx, fromCheckpointID)
	if err != nil {
		return nil, NewEngineError("Branch", errors.Join(ErrStorage, err))
	}
	if source == nil || source.ThreadID != threadID {
		return nil, NewEngineErrorRef("Branch", refCheckpoint(fromCheckpointID), ErrNotFound)
	}

	existing, err := c.store.LatestCheckpoint(opCtx, threadID, newBranch)
	if err != nil {
		return nil, NewEngineError("Branch", errors.Join(ErrStorage, err))
	}
	if existing != nil {
		return nil, NewEngineErrorRef("Branch", "branch "+newBranch+" already exists", ErrInvalidArgument)
	}

	parentID := source.ID
	cp := &Checkpoint{
		ID:            c.newID(),
		ThreadID:      threadID,
		AgentID:       source.AgentID,
		BranchName:    newBranch,
		ParentID:      &parentID,
		StateSnapshot: source.StateSnapshot,
		Label:         "branched from " + source.BranchName,
		CreatedAt:     time.Now().UTC(),
	}

	if err := c.store.InsertCheckpoint(opCtx, toStorageCheckpoint(cp)); err != nil {
		return nil, NewEngineError("Branch", errors.Join(ErrStorage, err))
	}
	return cp, nil
}

// Merge joins a source branch into a target branch.
//
// The caller supplies the merged state; the engine does not attempt to
// reconcile snapshots itself. The merge checkpoint lands on the target
// branch with two parents: ParentID is the target branch head and
// MergeParentID is the source branch head. Both branches must have at
// least one checkpoint.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - threadID: Thread both branches belong to
//   - sourceBranch: Branch being merged in
//   - targetBranch: Branch receiving the merge
//   - resolution: The merged state snapshot
//   - opts: Optional settings (label, agent)
//
// Returns the merge checkpoint.
func (c *Client) Merge(ctx context.Context, threadID, sourceBranch, targetBranch string, resolution []byte, opts ...MergeOption) (*Checkpoint, error) {
	options := &MergeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if threadID == "" {
		return nil, NewEngineErrorRef("Merge", "empty thread id", ErrInvalidArgument)
	}
	if sourceBranch == "" || targetBranch == "" {
		return nil, NewEngineErrorRef("Merge", "empty branch name", ErrInvalidArgument)
	}
	if sourceBranch == targetBranch {
		return nil, NewEngineErrorRef("Merge", "cannot merge a branch into itself", ErrInvalidArgument)
	}

	lock := c.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	sourceHead, err := c.store.LatestCheckpoint(opCtx, threadID, sourceBranch)
	if err != nil {
		return nil, NewEngineError("Merge", errors.Join(ErrStorage, err))
	}
	if sourceHead == nil {
		return nil, NewEngineErrorRef("Merge", "branch "+sourceBranch, ErrNotFound)
	}

	targetHead, err := c.store.LatestCheckpoint(opCtx, threadID, targetBranch)
	if err != nil {
		return nil, NewEngineError("Merge", errors.Join(ErrStorage, err))
	}
	if targetHead == nil {
		return nil, NewEngineErrorRef("Merge", "branch "+targetBranch, ErrNotFound)
	}

	label := options.Label
	if label == "" {
		label = "merged " + sourceBranch + " into " + targetBranch
	}

	parentID := targetHead.ID
	mergeParentID := sourceHead.ID
	cp := &Checkpoint{
		ID:            c.newID(),
		ThreadID:      threadID,
		AgentID:       c.agentOrDefault(options.AgentID),
		BranchName:    targetBranch,
		ParentID:      &parentID,
		MergeParentID: &mergeParentID,
		StateSnapshot: resolution,
		Label:         label,
		CreatedAt:     time.Now().UTC(),
	}

	if err := c.store.InsertCheckpoint(opCtx, toStorageCheckpoint(cp)); err != nil {
		return nil, NewEngineError("Merge", errors.Join(ErrStorage, err))
	}
	return cp, nil
}

// Replay restores a saved state snapshot.
//
// By default the head of the main branch is replayed; WithCheckpointID
// selects an exact checkpoint and WithBranchForReplay selects another
// branch's head. Replay only reads; the thread's history is untouched.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - threadID: Thread to replay
//   - opts: Optional settings (checkpoint ID or branch)
//
// Returns the selected checkpoint including its snapshot, or
// ErrNotFound when the thread, branch, or checkpoint does not exist.
func (c *Client) Replay(ctx context.Context, threadID string, opts ...ReplayOption) (*Checkpoint, error) {
	options := newReplayOptions()
	for _, opt := range opts {
		opt(options)
	}

	if threadID == "" {
		return nil, NewEngineErrorRef("Replay", "empty thread id", ErrInvalidArgument)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if options.CheckpointID != 0 {
		cp, err := c.store.GetCheckpoint(opCtx, options.CheckpointID)
		if err != nil {
			return nil, NewEngineError("Replay", errors.Join(ErrStorage, err))
		}
		if cp == nil || cp.ThreadID != threadID {
			return nil, NewEngineErrorRef("Replay", refCheckpoint(options.CheckpointID), ErrNotFound)
		}
		return fromStorageCheckpoint(cp), nil
	}

	head, err := c.store.LatestCheckpoint(opCtx, threadID, options.BranchName)
	if err != nil {
		return nil, NewEngineError("Replay", errors.Join(ErrStorage, err))
	}
	if head == nil {
		exists, err := c.store.ThreadExists(opCtx, threadID)
		if err != nil {
			return nil, NewEngineError("Replay", errors.Join(ErrStorage, err))
		}
		if !exists {
			return nil, NewEngineErrorRef("Replay", "thread "+threadID, ErrNotFound)
		}
		return nil, NewEngineErrorRef("Replay", "branch "+options.BranchName, ErrNotFound)
	}
	return fromStorageCheckpoint(head), nil
}

// ListCheckpoints returns a thread's checkpoints, newest first.
//
// An empty branchName lists checkpoints across all branches. A thread
// with no checkpoints yields an empty list, not an error.
func (c *Client) ListCheckpoints(ctx context.Context, threadID, branchName string) ([]*Checkpoint, error) {
	if threadID == "" {
		return nil, NewEngineErrorRef("ListCheckpoints", "empty thread id", ErrInvalidArgument)
	}

	rows, err := c.store.ListCheckpoints(ctx, threadID, branchName)
	if err != nil {
		return nil, NewEngineError("ListCheckpoints", errors.Join(ErrStorage, err))
	}

	checkpoints := make([]*Checkpoint, 0, len(rows))
	for _, row := range rows {
		checkpoints = append(checkpoints, fromStorageCheckpoint(row))
	}
	return checkpoints, nil
}

// DeleteThread removes a thread's entire checkpoint history, all
// branches included. Memory records are unaffected.
//
// Returns the number of checkpoints removed.
func (c *Client) DeleteThread(ctx context.Context, threadID string) (int, error) {
	if threadID == "" {
		return 0, NewEngineErrorRef("DeleteThread", "empty thread id", ErrInvalidArgument)
	}

	lock := c.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	count, err := c.store.DeleteThread(ctx, threadID)
	if err != nil {
		return 0, NewEngineError("DeleteThread", errors.Join(ErrStorage, err))
	}
	return int(count), nil
}

// refCheckpoint formats a checkpoint ID for use as an error Ref.
func refCheckpoint(id int64) string {
	return "checkpoint " + strconv.FormatInt(id, 10)
}
