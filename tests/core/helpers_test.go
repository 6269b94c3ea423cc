package core_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	core "github.com/engramdb/engram-go/pkg/core"
)

// testDimensions keeps the deterministic embedder small and fast.
const testDimensions = 64

func testConfig(t *testing.T) *core.Config {
	dbPath := filepath.Join(t.TempDir(), "engram_test.db")
	return &core.Config{
		Store: core.StoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": dbPath},
		},
		Embedder: core.EmbedderConfig{
			Provider:   "noop",
			Dimensions: testDimensions,
		},
		Index:          core.IndexConfig{Provider: "flat"},
		DefaultAgentID: "agent_test",
	}
}

func setupTestClient(t *testing.T) (*core.Client, func()) {
	client, err := core.NewClient(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, client)

	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup
}
