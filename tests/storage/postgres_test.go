package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram-go/pkg/storage"
	postgresStore "github.com/engramdb/engram-go/pkg/storage/postgres"
)

func setupPostgresTest(t *testing.T) (storage.Store, func()) {
	// Load .env file from project root
	envPath := filepath.Join("..", "..", ".env")
	_ = godotenv.Load(envPath)

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	portStr := os.Getenv("POSTGRES_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: invalid POSTGRES_PORT: %s", portStr)
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_PASSWORD not set")
	}

	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "engram_test"
	}

	store, err := postgresStore.NewClient(&postgresStore.Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: dbName,
		SSLMode:  "disable",
	})
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: cannot connect: %v", err)
	}

	// Each test starts from an empty database.
	require.NoError(t, store.Reset(context.Background()))

	cleanup := func() {
		_ = store.Reset(context.Background())
		_ = store.Close()
	}
	return store, cleanup
}

func TestPostgres_InsertGetDelete(t *testing.T) {
	store, cleanup := setupPostgresTest(t)
	defer cleanup()
	ctx := context.Background()

	memory := testMemory(1)
	require.NoError(t, store.InsertMemory(ctx, memory))

	got, err := store.GetMemories(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "test content", got[0].Content)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got[0].Embedding)
	assert.Equal(t, []string{"a", "b"}, got[0].Tags)

	deleted, err := store.DeleteMemories(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, deleted)
}

func TestPostgres_UpdateContentAndStale(t *testing.T) {
	store, cleanup := setupPostgresTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))
	require.NoError(t, store.UpdateMemoryContent(ctx, 1, "replaced", "cafebabe"))

	stale, err := store.ListStaleEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, stale)

	got, err := store.GetMemories(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Embedding)
	assert.True(t, got[0].EmbeddingStale)
}

func TestPostgres_DeleteExpired(t *testing.T) {
	store, cleanup := setupPostgresTest(t)
	defer cleanup()
	ctx := context.Background()

	stale := testMemory(2)
	past := time.Now().UTC().Add(-time.Minute)
	stale.ExpiresAt = &past

	require.NoError(t, store.InsertMemory(ctx, testMemory(1)))
	require.NoError(t, store.InsertMemory(ctx, stale))

	removed, err := store.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, removed)
}

func TestPostgres_Checkpoints(t *testing.T) {
	store, cleanup := setupPostgresTest(t)
	defer cleanup()
	ctx := context.Background()

	cp := &storage.Checkpoint{
		ID:            1,
		ThreadID:      "thread_pg",
		AgentID:       "agent_test",
		BranchName:    "main",
		StateSnapshot: []byte("snap"),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.InsertCheckpoint(ctx, cp))

	head, err := store.LatestCheckpoint(ctx, "thread_pg", "main")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, []byte("snap"), head.StateSnapshot)

	count, err := store.DeleteThread(ctx, "thread_pg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
