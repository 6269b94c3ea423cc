package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/engramdb/engram-go/pkg/core"
)

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig(t)
	assert.NoError(t, cfg.Validate())

	bad := testConfig(t)
	bad.Store.Provider = "oracle"
	assert.ErrorIs(t, bad.Validate(), core.ErrInvalidConfig)

	bad = testConfig(t)
	bad.Embedder.Provider = "psychic"
	assert.ErrorIs(t, bad.Validate(), core.ErrInvalidConfig)

	bad = testConfig(t)
	bad.Embedder.Dimensions = 0
	assert.ErrorIs(t, bad.Validate(), core.ErrInvalidConfig)

	bad = testConfig(t)
	bad.Index.Provider = "hnswlib"
	assert.ErrorIs(t, bad.Validate(), core.ErrInvalidConfig)

	bad = testConfig(t)
	bad.Dedup = "maybe"
	assert.ErrorIs(t, bad.Validate(), core.ErrInvalidConfig)

	bad = testConfig(t)
	bad.Score.SimilarityWeight = -1
	assert.ErrorIs(t, bad.Validate(), core.ErrInvalidConfig)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "env.db"))
	t.Setenv("EMBEDDING_PROVIDER", "noop")
	t.Setenv("EMBEDDING_DIMENSIONS", "32")
	t.Setenv("DEDUP_POLICY", "reject")
	t.Setenv("DEFAULT_AGENT_ID", "agent_env")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Provider)
	assert.Equal(t, "noop", cfg.Embedder.Provider)
	assert.Equal(t, 32, cfg.Embedder.Dimensions)
	assert.Equal(t, core.DedupReject, cfg.Dedup)
	assert.Equal(t, "agent_env", cfg.DefaultAgentID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "")
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Provider)
	assert.Equal(t, "noop", cfg.Embedder.Provider)
	assert.Equal(t, 1536, cfg.Embedder.Dimensions)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"store": {"provider": "sqlite", "config": {"db_path": "./x.db"}},
		"embedder": {"provider": "noop", "dimensions": 16},
		"index": {"provider": "flat"},
		"default_agent_id": "agent_json"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Provider)
	assert.Equal(t, 16, cfg.Embedder.Dimensions)
	assert.Equal(t, "agent_json", cfg.DefaultAgentID)

	_, err = core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedder.Dimensions = -1

	_, err := core.NewClient(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewClient_BadEncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EncryptionKey = "too-short"

	_, err := core.NewClient(cfg)
	assert.Error(t, err)
}
