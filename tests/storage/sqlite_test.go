package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram-go/pkg/storage"
	sqliteStore "github.com/engramdb/engram-go/pkg/storage/sqlite"
)

func setupSQLiteTest(t *testing.T) (storage.Store, func()) {
	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "test_engram.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		_ = store.Close()
	}
	return store, cleanup
}

func testMemory(id int64) *storage.Memory {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &storage.Memory{
		ID:          id,
		AgentID:     "agent_test",
		OrgID:       "org_test",
		Content:     "test content",
		ContentHash: "deadbeef",
		Embedding:   []float64{0.1, 0.2, 0.3},
		Tags:        []string{"a", "b"},
		Importance:  0.5,
		MemoryType:  "episodic",
		Scope:       "private",
		Metadata:    map[string]interface{}{"key": "value"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSQLite_InsertAndGet(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	memory := testMemory(100)
	require.NoError(t, store.InsertMemory(ctx, memory))

	got, err := store.GetMemories(ctx, []int64{100})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, int64(100), got[0].ID)
	assert.Equal(t, "agent_test", got[0].AgentID)
	assert.Equal(t, "test content", got[0].Content)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got[0].Embedding)
	assert.Equal(t, []string{"a", "b"}, got[0].Tags)
	assert.Equal(t, "value", got[0].Metadata["key"])
	assert.False(t, got[0].EmbeddingStale)
	assert.Nil(t, got[0].ExpiresAt)
}

func TestSQLite_GetMemories_OrderAndMissing(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))
	require.NoError(t, store.InsertMemory(ctx, testMemory(2)))

	got, err := store.GetMemories(ctx, []int64{2, 999, 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)

	empty, err := store.GetMemories(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_DeleteMemories(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))

	deleted, err := store.DeleteMemories(ctx, []int64{1, 999})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, deleted)

	again, err := store.DeleteMemories(ctx, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSQLite_UpdateContent_MarksStale(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))
	require.NoError(t, store.UpdateMemoryContent(ctx, 1, "new content", "cafebabe"))

	got, err := store.GetMemories(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new content", got[0].Content)
	assert.Equal(t, "cafebabe", got[0].ContentHash)
	assert.Nil(t, got[0].Embedding)
	assert.True(t, got[0].EmbeddingStale)

	stale, err := store.ListStaleEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, stale)

	require.NoError(t, store.UpdateMemoryEmbedding(ctx, 1, []float64{1, 0}))
	stale, err = store.ListStaleEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestSQLite_UpdateScopeOwnerImportance(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))

	require.NoError(t, store.UpdateMemoryScope(ctx, 1, "global"))
	require.NoError(t, store.UpdateMemoryOwner(ctx, 1, "agent_new", "org_new"))
	require.NoError(t, store.UpdateMemoryImportance(ctx, 1, 0.9))

	got, err := store.GetMemories(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "global", got[0].Scope)
	assert.Equal(t, "agent_new", got[0].AgentID)
	assert.Equal(t, "org_new", got[0].OrgID)
	assert.Equal(t, 0.9, got[0].Importance)
}

func TestSQLite_FindByContentHash(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	memory := testMemory(1)
	require.NoError(t, store.InsertMemory(ctx, memory))

	found, err := store.FindByContentHash(ctx, "agent_test", "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.ID)

	// Other agent or other hash finds nothing, without error.
	none, err := store.FindByContentHash(ctx, "agent_other", "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = store.FindByContentHash(ctx, "agent_test", "00000000")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_IterateMemories_Filter(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	m1 := testMemory(1)
	m2 := testMemory(2)
	m2.AgentID = "agent_other"
	m2.MemoryType = "semantic"
	m3 := testMemory(3)
	expired := time.Now().UTC().Add(-time.Hour)
	m3.ExpiresAt = &expired

	require.NoError(t, store.InsertMemory(ctx, m1))
	require.NoError(t, store.InsertMemory(ctx, m2))
	require.NoError(t, store.InsertMemory(ctx, m3))

	collect := func(filter *storage.Filter) []int64 {
		var ids []int64
		err := store.IterateMemories(ctx, filter, func(m *storage.Memory) bool {
			ids = append(ids, m.ID)
			return true
		})
		require.NoError(t, err)
		return ids
	}

	// Expired records are excluded by default.
	assert.Equal(t, []int64{1, 2}, collect(&storage.Filter{}))
	assert.Equal(t, []int64{1, 2, 3}, collect(&storage.Filter{IncludeExpired: true}))
	assert.Equal(t, []int64{1}, collect(&storage.Filter{AgentID: "agent_test"}))
	assert.Equal(t, []int64{2}, collect(&storage.Filter{MemoryType: "semantic"}))
	assert.Equal(t, []int64{1, 2}, collect(&storage.Filter{Tags: []string{"a"}}))
	assert.Empty(t, collect(&storage.Filter{Tags: []string{"a", "zzz"}}))

	// Early stop.
	var first []int64
	err := store.IterateMemories(ctx, &storage.Filter{}, func(m *storage.Memory) bool {
		first = append(first, m.ID)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, first)
}

func TestSQLite_DeleteExpired(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	fresh := testMemory(1)
	stale := testMemory(2)
	past := time.Now().UTC().Add(-time.Minute)
	stale.ExpiresAt = &past

	require.NoError(t, store.InsertMemory(ctx, fresh))
	require.NoError(t, store.InsertMemory(ctx, stale))

	removed, err := store.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, removed)

	left, err := store.GetMemories(ctx, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, int64(1), left[0].ID)
}

func TestSQLite_Checkpoints(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	cp1 := &storage.Checkpoint{
		ID:            1,
		ThreadID:      "thread_1",
		AgentID:       "agent_test",
		BranchName:    "main",
		StateSnapshot: []byte("snap-1"),
		Label:         "first",
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.InsertCheckpoint(ctx, cp1))

	parent := cp1.ID
	cp2 := &storage.Checkpoint{
		ID:            2,
		ThreadID:      "thread_1",
		AgentID:       "agent_test",
		BranchName:    "main",
		ParentID:      &parent,
		StateSnapshot: []byte("snap-2"),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.InsertCheckpoint(ctx, cp2))

	got, err := store.GetCheckpoint(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("snap-1"), got.StateSnapshot)
	assert.Nil(t, got.ParentID)

	missing, err := store.GetCheckpoint(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	head, err := store.LatestCheckpoint(ctx, "thread_1", "main")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, int64(2), head.ID)
	require.NotNil(t, head.ParentID)
	assert.Equal(t, int64(1), *head.ParentID)

	noBranch, err := store.LatestCheckpoint(ctx, "thread_1", "ghost")
	require.NoError(t, err)
	assert.Nil(t, noBranch)

	list, err := store.ListCheckpoints(ctx, "thread_1", "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)

	exists, err := store.ThreadExists(ctx, "thread_1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.ThreadExists(ctx, "thread_ghost")
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := store.DeleteThread(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLite_Reset(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))
	require.NoError(t, store.InsertCheckpoint(ctx, &storage.Checkpoint{
		ID:         1,
		ThreadID:   "thread_1",
		BranchName: "main",
		CreatedAt:  time.Now().UTC(),
	}))

	require.NoError(t, store.Reset(ctx))

	got, err := store.GetMemories(ctx, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, got)

	exists, err := store.ThreadExists(ctx, "thread_1")
	require.NoError(t, err)
	assert.False(t, exists)
}
