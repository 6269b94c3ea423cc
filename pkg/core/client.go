// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/engramdb/engram-go/pkg/cache"
	"github.com/engramdb/engram-go/pkg/embedder"
	noopEmbedder "github.com/engramdb/engram-go/pkg/embedder/noop"
	openaiEmbedder "github.com/engramdb/engram-go/pkg/embedder/openai"
	"github.com/engramdb/engram-go/pkg/index"
	chromemIndex "github.com/engramdb/engram-go/pkg/index/chromem"
	flatIndex "github.com/engramdb/engram-go/pkg/index/flat"
	"github.com/engramdb/engram-go/pkg/security"
	"github.com/engramdb/engram-go/pkg/storage"
	mysqlStore "github.com/engramdb/engram-go/pkg/storage/mysql"
	postgresStore "github.com/engramdb/engram-go/pkg/storage/postgres"
	sqliteStore "github.com/engramdb/engram-go/pkg/storage/sqlite"
)

// DefaultBranch is the branch name used when no branch is specified.
const DefaultBranch = "main"

// defaultOperationTimeout bounds embedding and storage calls when the
// caller's context carries no deadline.
const defaultOperationTimeout = 30 * time.Second

// threadStripes is the number of striped mutexes serializing checkpoint
// appends per thread.
const threadStripes = 64

// Client is the main entry point to the Engram memory engine.
//
// A client combines a relational store (the source of truth), an
// embedding provider, a vector index, an optional record cache, and an
// optional encryptor. It is safe for concurrent use.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, err := core.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	record, _ := client.Remember(ctx, "User prefers dark roast",
//	    core.WithAgentID("agent_001"))
type Client struct {
	// config is the client configuration.
	config *Config

	// store is the relational storage backend.
	store storage.Store

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// index is the vector index for similarity search.
	index index.VectorIndex

	// recordCache caches decrypted records (nil when disabled).
	recordCache *cache.RecordCache

	// encryptor encrypts content at rest (nil when no key is configured).
	encryptor *security.Encryptor

	// snowflakeNode generates unique IDs for records and checkpoints.
	snowflakeNode *snowflake.Node

	// logger reports non-fatal events. Defaults to slog.Default().
	logger *slog.Logger

	// mu protects concurrent access to the client.
	mu sync.RWMutex

	// threadLocks serialize checkpoint appends per thread.
	threadLocks [threadStripes]sync.Mutex
}

// NewClient creates a new Engram client.
//
// The client is initialized with:
//   - Relational store (SQLite, PostgreSQL, or MySQL)
//   - Embedding provider (OpenAI or noop), wrapped with retry
//   - Vector index (flat or chromem), loaded from disk when a path is set
//   - Encryptor, when an encryption key is configured
//
// A persisted flat index that turns out to be corrupt is rebuilt from
// the store automatically unless DisableAutoRebuild is set.
//
// Parameters:
//   - cfg: Configuration containing store, embedder, and index settings
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := initStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	embedderProvider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	vectorIndex, err := initIndex(cfg.Index, cfg.Embedder.Dimensions)
	if err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewEngineError("NewClient", err)
	}

	client := &Client{
		config:        cfg,
		store:         store,
		embedder:      embedderProvider,
		index:         vectorIndex,
		snowflakeNode: node,
		logger:        slog.Default(),
	}

	if cfg.Security.EncryptionKey != "" {
		encryptor, err := security.NewEncryptorFromHex(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, NewEngineError("NewClient", err)
		}
		client.encryptor = encryptor
	}

	if !cfg.Cache.Disabled {
		recordCache, err := cache.New(&cache.Config{
			MaxCostBytes: cfg.Cache.MaxCostBytes,
			NumCounters:  cfg.Cache.NumCounters,
		})
		if err != nil {
			return nil, NewEngineError("NewClient", err)
		}
		client.recordCache = recordCache
	}

	if cfg.Index.Path != "" {
		if err := client.LoadIndex(context.Background()); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// SetLogger replaces the client's logger. Passing nil restores
// slog.Default().
func (c *Client) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// Close closes the client and releases all resources.
//
// Returns the first error encountered while closing components.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if err := c.embedder.Close(); err != nil {
		firstErr = err
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.recordCache != nil {
		c.recordCache.Close()
	}
	return NewEngineError("Close", firstErr)
}

// newID generates a new snowflake ID.
func (c *Client) newID() int64 {
	return c.snowflakeNode.Generate().Int64()
}

// threadLock returns the stripe mutex for a thread ID.
func (c *Client) threadLock(threadID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(threadID))
	return &c.threadLocks[h.Sum32()%threadStripes]
}

// opContext applies the configured operation timeout when the caller's
// context has no deadline.
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := c.config.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// agentOrDefault resolves an agent ID against the configured default.
func (c *Client) agentOrDefault(agentID string) string {
	if agentID != "" {
		return agentID
	}
	return c.config.DefaultAgentID
}

// orgOrDefault resolves an org ID against the configured default.
func (c *Client) orgOrDefault(orgID string) string {
	if orgID != "" {
		return orgID
	}
	return c.config.DefaultOrgID
}

// scoreWeights returns the configured scoring weights, falling back to
// the 0.7/0.3 defaults when both are zero.
func (c *Client) scoreWeights() (similarity, importance float64) {
	if c.config.Score.SimilarityWeight == 0 && c.config.Score.ImportanceWeight == 0 {
		return 0.7, 0.3
	}
	return c.config.Score.SimilarityWeight, c.config.Score.ImportanceWeight
}

// initStore initializes the storage backend.
func initStore(cfg StoreConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: cfgString(cfg.Config, "db_path", "./engram.db"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     cfgString(cfg.Config, "host", "localhost"),
			Port:     cfgInt(cfg.Config, "port", 5432),
			User:     cfgString(cfg.Config, "user", "postgres"),
			Password: cfgString(cfg.Config, "password", ""),
			Database: cfgString(cfg.Config, "db_name", "engram"),
			SSLMode:  cfgString(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     cfgString(cfg.Config, "host", "127.0.0.1"),
			Port:     cfgInt(cfg.Config, "port", 3306),
			User:     cfgString(cfg.Config, "user", "root"),
			Password: cfgString(cfg.Config, "password", ""),
			Database: cfgString(cfg.Config, "db_name", "engram"),
		})
	default:
		return nil, NewEngineError("initStore", ErrInvalidConfig)
	}
}

// initEmbedder initializes the embedding provider and wraps it with retry.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	var provider embedder.Provider
	var err error

	switch cfg.Provider {
	case "openai":
		provider, err = openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "noop":
		provider, err = noopEmbedder.New(cfg.Dimensions)
	default:
		return nil, NewEngineError("initEmbedder", ErrInvalidConfig)
	}
	if err != nil {
		return nil, NewEngineError("initEmbedder", err)
	}

	return embedder.WithRetry(provider, cfg.MaxRetries, 0), nil
}

// initIndex initializes the vector index backend.
func initIndex(cfg IndexConfig, dimensions int) (index.VectorIndex, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "flat"
	}

	switch provider {
	case "flat":
		ix, err := flatIndex.New(dimensions)
		if err != nil {
			return nil, NewEngineError("initIndex", err)
		}
		return ix, nil
	case "chromem":
		ix, err := chromemIndex.New(cfg.Path, dimensions)
		if err != nil {
			return nil, NewEngineError("initIndex", err)
		}
		return ix, nil
	default:
		return nil, NewEngineError("initIndex", ErrInvalidConfig)
	}
}

// cfgString reads a string from a provider config map.
func cfgString(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// cfgInt reads an int from a provider config map. JSON decoding yields
// float64, so both forms are accepted.
func cfgInt(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
