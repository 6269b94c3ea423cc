package core_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/engramdb/engram-go/pkg/core"
)

func TestSaveIndex_NoPathConfigured(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()

	err := client.SaveIndex(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestSaveIndex_LoadIndex_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "engram.db")
	indexPath := filepath.Join(dir, "engram.index")

	cfg := &core.Config{
		Store: core.StoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": dbPath},
		},
		Embedder: core.EmbedderConfig{Provider: "noop", Dimensions: testDimensions},
		Index:    core.IndexConfig{Provider: "flat", Path: indexPath},
	}

	client, err := core.NewClient(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	record, err := client.Remember(ctx, "persisted fact")
	require.NoError(t, err)
	require.NoError(t, client.SaveIndex(ctx))
	require.NoError(t, client.Close())

	// A fresh client picks the index up from disk.
	reopened, err := core.NewClient(cfg)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.IndexSize())

	result, err := reopened.Recall(ctx, "persisted fact", core.WithLimit(1))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, record.ID, result.Records[0].ID)
}

func TestLoadIndex_CorruptTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "engram.db")
	indexPath := filepath.Join(dir, "engram.index")

	cfg := &core.Config{
		Store: core.StoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": dbPath},
		},
		Embedder: core.EmbedderConfig{Provider: "noop", Dimensions: testDimensions},
		Index:    core.IndexConfig{Provider: "flat", Path: indexPath},
	}

	client, err := core.NewClient(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Remember(ctx, "first fact")
	require.NoError(t, err)
	_, err = client.Remember(ctx, "second fact")
	require.NoError(t, err)
	require.NoError(t, client.SaveIndex(ctx))
	require.NoError(t, client.Close())

	// Corrupt the mapping sidecar on disk.
	require.NoError(t, os.WriteFile(indexPath+".mapping.json", []byte("{broken"), 0644))

	// The reopened client rebuilds from the store.
	reopened, err := core.NewClient(cfg)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.IndexSize())
}

func TestLoadIndex_CorruptWithRebuildDisabled(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "engram.db")
	indexPath := filepath.Join(dir, "engram.index")

	cfg := &core.Config{
		Store: core.StoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": dbPath},
		},
		Embedder: core.EmbedderConfig{Provider: "noop", Dimensions: testDimensions},
		Index: core.IndexConfig{
			Provider:           "flat",
			Path:               indexPath,
			DisableAutoRebuild: true,
		},
	}

	client, err := core.NewClient(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Remember(ctx, "a fact")
	require.NoError(t, err)
	require.NoError(t, client.SaveIndex(ctx))
	require.NoError(t, client.Close())

	require.NoError(t, os.WriteFile(indexPath+".mapping.json", []byte("{broken"), 0644))

	_, err = core.NewClient(cfg)
	assert.ErrorIs(t, err, core.ErrIndexCorrupt)
}

func TestRebuildIndex(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()
	ctx := context.Background()

	for _, content := range []string{"alpha", "beta", "gamma"} {
		_, err := client.Remember(ctx, content)
		require.NoError(t, err)
	}
	require.Equal(t, 3, client.IndexSize())

	count, err := client.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, client.IndexSize())

	// Recall still works after a rebuild.
	result, err := client.Recall(ctx, "beta", core.WithLimit(1))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "beta", result.Records[0].Content)
}
