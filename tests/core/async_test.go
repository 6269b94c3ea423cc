package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/engramdb/engram-go/pkg/core"
)

func setupAsyncClient(t *testing.T) (*core.AsyncClient, func()) {
	client, err := core.NewAsyncClient(testConfig(t))
	require.NoError(t, err)

	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup
}

func TestAsync_RememberAndRecall(t *testing.T) {
	client, cleanup := setupAsyncClient(t)
	defer cleanup()
	ctx := context.Background()

	ch1 := client.RememberAsync(ctx, "first async fact")
	ch2 := client.RememberAsync(ctx, "second async fact")

	r1 := <-ch1
	require.NoError(t, r1.Error)
	require.NotNil(t, r1.Record)
	r2 := <-ch2
	require.NoError(t, r2.Error)
	require.NotNil(t, r2.Record)
	assert.NotEqual(t, r1.Record.ID, r2.Record.ID)

	recallCh := client.RecallAsync(ctx, "first async fact", core.WithLimit(1))
	recall := <-recallCh
	require.NoError(t, recall.Error)
	require.Len(t, recall.Result.Records, 1)
	assert.Equal(t, r1.Record.ID, recall.Result.Records[0].ID)
}

func TestAsync_Forget(t *testing.T) {
	client, cleanup := setupAsyncClient(t)
	defer cleanup()
	ctx := context.Background()

	stored := <-client.RememberAsync(ctx, "disposable fact")
	require.NoError(t, stored.Error)

	forgot := <-client.ForgetAsync(ctx, []int64{stored.Record.ID})
	require.NoError(t, forgot.Error)
	assert.Equal(t, []int64{stored.Record.ID}, forgot.Result.Forgotten)
}

func TestAsync_Checkpoint(t *testing.T) {
	client, cleanup := setupAsyncClient(t)
	defer cleanup()
	ctx := context.Background()

	result := <-client.CheckpointAsync(ctx, "thread_async", []byte("state"))
	require.NoError(t, result.Error)
	assert.Equal(t, core.DefaultBranch, result.Checkpoint.BranchName)
}

func TestAsync_ErrorPropagates(t *testing.T) {
	client, cleanup := setupAsyncClient(t)
	defer cleanup()

	result := <-client.RememberAsync(context.Background(), "")
	assert.ErrorIs(t, result.Error, core.ErrInvalidArgument)
}

func TestAsync_Wait(t *testing.T) {
	client, cleanup := setupAsyncClient(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		client.RememberAsync(ctx, "fire and forget")
	}

	// Wait blocks until every goroutine has delivered its result into
	// the buffered channel.
	client.Wait()
	assert.Equal(t, 5, client.IndexSize())
}
