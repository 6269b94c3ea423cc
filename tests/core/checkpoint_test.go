package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/engramdb/engram-go/pkg/core"
)

func TestCheckpoint_Chain(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	cp1, err := client.Checkpoint(ctx, "thread_1", []byte("state-1"),
		core.WithLabel("first"),
	)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultBranch, cp1.BranchName)
	assert.Nil(t, cp1.ParentID)
	assert.Equal(t, "first", cp1.Label)

	cp2, err := client.Checkpoint(ctx, "thread_1", []byte("state-2"))
	require.NoError(t, err)
	require.NotNil(t, cp2.ParentID)
	assert.Equal(t, cp1.ID, *cp2.ParentID)

	// A different thread starts its own chain.
	other, err := client.Checkpoint(ctx, "thread_2", []byte("other"))
	require.NoError(t, err)
	assert.Nil(t, other.ParentID)
}

func TestCheckpoint_Validation(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	_, err := client.Checkpoint(ctx, "", []byte("state"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = client.Checkpoint(ctx, "thread_1", []byte("state"), core.WithBranch(""))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestBranch(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	cp1, err := client.Checkpoint(ctx, "thread_1", []byte("base"))
	require.NoError(t, err)

	branchCp, err := client.Branch(ctx, "thread_1", cp1.ID, "experiment")
	require.NoError(t, err)
	assert.Equal(t, "experiment", branchCp.BranchName)
	require.NotNil(t, branchCp.ParentID)
	assert.Equal(t, cp1.ID, *branchCp.ParentID)
	assert.Equal(t, []byte("base"), branchCp.StateSnapshot)

	// Unknown source checkpoint.
	_, err = client.Branch(ctx, "thread_1", 99999, "another")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// A checkpoint from a different thread is not a valid source.
	_, err = client.Branch(ctx, "thread_other", cp1.ID, "another")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = client.Branch(ctx, "thread_1", cp1.ID, "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	// Branch names are unique per thread.
	_, err = client.Branch(ctx, "thread_1", cp1.ID, "experiment")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestMerge(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	cp1, err := client.Checkpoint(ctx, "thread_1", []byte("main-1"))
	require.NoError(t, err)

	_, err = client.Branch(ctx, "thread_1", cp1.ID, "experiment")
	require.NoError(t, err)
	expHead, err := client.Checkpoint(ctx, "thread_1", []byte("exp-2"),
		core.WithBranch("experiment"),
	)
	require.NoError(t, err)

	mainHead, err := client.Checkpoint(ctx, "thread_1", []byte("main-2"))
	require.NoError(t, err)

	merge, err := client.Merge(ctx, "thread_1", "experiment", core.DefaultBranch,
		[]byte("resolved"))
	require.NoError(t, err)

	assert.Equal(t, core.DefaultBranch, merge.BranchName)
	require.NotNil(t, merge.ParentID)
	require.NotNil(t, merge.MergeParentID)
	assert.Equal(t, mainHead.ID, *merge.ParentID)
	assert.Equal(t, expHead.ID, *merge.MergeParentID)
	assert.Equal(t, []byte("resolved"), merge.StateSnapshot)

	// The merge checkpoint is now the head of main.
	head, err := client.Replay(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, merge.ID, head.ID)
}

func TestMerge_Validation(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	_, err := client.Checkpoint(ctx, "thread_1", []byte("state"))
	require.NoError(t, err)

	// Merging a branch into itself.
	_, err = client.Merge(ctx, "thread_1", core.DefaultBranch, core.DefaultBranch, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	// Source branch has no checkpoints.
	_, err = client.Merge(ctx, "thread_1", "ghost", core.DefaultBranch, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Target branch has no checkpoints.
	_, err = client.Merge(ctx, "thread_1", core.DefaultBranch, "ghost", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReplay(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	cp1, err := client.Checkpoint(ctx, "thread_1", []byte("state-1"))
	require.NoError(t, err)
	cp2, err := client.Checkpoint(ctx, "thread_1", []byte("state-2"))
	require.NoError(t, err)

	// Default replay returns the main branch head.
	head, err := client.Replay(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, cp2.ID, head.ID)
	assert.Equal(t, []byte("state-2"), head.StateSnapshot)

	// Replay an exact checkpoint.
	exact, err := client.Replay(ctx, "thread_1", core.WithCheckpointID(cp1.ID))
	require.NoError(t, err)
	assert.Equal(t, []byte("state-1"), exact.StateSnapshot)

	// Unknown thread and unknown branch are both not found.
	_, err = client.Replay(ctx, "thread_ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = client.Replay(ctx, "thread_1", core.WithBranchForReplay("ghost"))
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = client.Replay(ctx, "thread_1", core.WithCheckpointID(99999))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListCheckpoints(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	cp1, err := client.Checkpoint(ctx, "thread_1", []byte("a"))
	require.NoError(t, err)
	_, err = client.Branch(ctx, "thread_1", cp1.ID, "experiment")
	require.NoError(t, err)
	_, err = client.Checkpoint(ctx, "thread_1", []byte("b"))
	require.NoError(t, err)

	all, err := client.ListCheckpoints(ctx, "thread_1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Newest first.
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].ID, all[i].ID)
	}

	mainOnly, err := client.ListCheckpoints(ctx, "thread_1", core.DefaultBranch)
	require.NoError(t, err)
	assert.Len(t, mainOnly, 2)

	empty, err := client.ListCheckpoints(ctx, "thread_ghost", "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteThread(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	_, err := client.Checkpoint(ctx, "thread_1", []byte("a"))
	require.NoError(t, err)
	_, err = client.Checkpoint(ctx, "thread_1", []byte("b"))
	require.NoError(t, err)
	_, err = client.Checkpoint(ctx, "thread_2", []byte("c"))
	require.NoError(t, err)

	count, err := client.DeleteThread(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = client.Replay(ctx, "thread_1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// The other thread is untouched.
	head, err := client.Replay(ctx, "thread_2")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), head.StateSnapshot)
}
