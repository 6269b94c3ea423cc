// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DedupPolicy controls what Remember does when a record with the same
// content hash already exists for the agent.
type DedupPolicy string

const (
	// DedupAllow stores the duplicate as a new record. This is the
	// default: agents often legitimately re-learn the same fact.
	DedupAllow DedupPolicy = "allow"

	// DedupReject returns ErrDuplicate instead of storing.
	DedupReject DedupPolicy = "reject"
)

// EmbedFailurePolicy controls what Remember does when the embedding
// provider fails after retries.
type EmbedFailurePolicy string

const (
	// EmbedFailError fails the operation with ErrEmbeddingUnavailable.
	// This is the default; nothing is written.
	EmbedFailError EmbedFailurePolicy = "error"

	// EmbedFailStale stores the record without an embedding and marks
	// it stale, to be picked up later by ReembedStale.
	EmbedFailStale EmbedFailurePolicy = "stale"
)

// Config contains the complete configuration for an Engram client.
//
// It includes settings for:
//   - Store (relational backend for records and checkpoints)
//   - Embedder (embedding provider for vector generation)
//   - Index (vector index backend and persistence path)
//   - Security (optional at-rest encryption)
//   - Cache, scoring, and dedup behavior
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./engram.db",
//	        },
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Dimensions: 1536,
//	    },
//	    Index: core.IndexConfig{
//	        Provider: "flat",
//	        Path:     "./engram.index",
//	    },
//	}
type Config struct {
	// Store contains relational store configuration.
	Store StoreConfig `json:"store"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Index contains vector index configuration.
	Index IndexConfig `json:"index"`

	// Security contains encryption configuration (optional).
	Security SecurityConfig `json:"security,omitempty"`

	// Cache contains record cache configuration (optional).
	Cache CacheConfig `json:"cache,omitempty"`

	// Score contains recall scoring weights (optional).
	Score ScorePolicy `json:"score,omitempty"`

	// Dedup controls duplicate handling in Remember. Defaults to DedupAllow.
	Dedup DedupPolicy `json:"dedup,omitempty"`

	// DefaultAgentID is used when an operation does not name an agent.
	DefaultAgentID string `json:"default_agent_id,omitempty"`

	// DefaultOrgID is used when an operation does not name an organization.
	DefaultOrgID string `json:"default_org_id,omitempty"`

	// OperationTimeout bounds embedding and storage calls when the
	// caller's context has no deadline. Defaults to 30 seconds.
	OperationTimeout time.Duration `json:"operation_timeout,omitempty"`
}

// StoreConfig contains configuration for the relational store.
//
// Supported providers: sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, noop
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, noop).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g., 1536).
	Dimensions int `json:"dimensions,omitempty"`

	// MaxRetries is the number of attempts for failed embedding calls.
	// Defaults to 3.
	MaxRetries int `json:"max_retries,omitempty"`

	// FailurePolicy controls Remember behavior when embedding fails
	// after retries. Defaults to EmbedFailError.
	FailurePolicy EmbedFailurePolicy `json:"failure_policy,omitempty"`
}

// IndexConfig contains configuration for the vector index.
//
// Supported providers: flat, chromem
type IndexConfig struct {
	// Provider is the index provider name (flat, chromem).
	Provider string `json:"provider"`

	// Path is where the index persists. For flat it is a file path
	// (a .mapping.json sidecar is written next to it); for chromem it
	// is a directory. Empty keeps the index memory-only.
	Path string `json:"path,omitempty"`

	// DisableAutoRebuild turns off the automatic rebuild from the
	// store when LoadIndex finds corrupt index files.
	DisableAutoRebuild bool `json:"disable_auto_rebuild,omitempty"`
}

// SecurityConfig contains at-rest encryption configuration.
type SecurityConfig struct {
	// EncryptionKey is a 64-character hex string (32 bytes). When set,
	// record content and metadata are encrypted with AES-256-GCM
	// before hitting the store. Content hashes are always computed
	// over plaintext.
	EncryptionKey string `json:"encryption_key,omitempty"`
}

// CacheConfig contains record cache configuration.
type CacheConfig struct {
	// Disabled turns the record cache off.
	Disabled bool `json:"disabled,omitempty"`

	// MaxCostBytes is the cache capacity in content bytes. Defaults to 64 MiB.
	MaxCostBytes int64 `json:"max_cost_bytes,omitempty"`

	// NumCounters is the number of admission counters. Defaults to 100000.
	NumCounters int64 `json:"num_counters,omitempty"`
}

// ScorePolicy contains the recall scoring weights.
//
// The recall score of a record is
//
//	SimilarityWeight*similarity + ImportanceWeight*importance
//
// where similarity is normalized to [0, 1]. Both weights zero means
// the defaults (0.7 and 0.3) apply.
type ScorePolicy struct {
	// SimilarityWeight weights embedding similarity. Default 0.7.
	SimilarityWeight float64 `json:"similarity_weight,omitempty"`

	// ImportanceWeight weights record importance. Default 0.3.
	ImportanceWeight float64 `json:"importance_weight,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - EMBEDDING_FAILURE_POLICY (error, stale)
//   - INDEX_PROVIDER (flat, chromem), INDEX_PATH
//   - ENCRYPTION_KEY (64 hex characters enables at-rest encryption)
//   - DEDUP_POLICY (allow, reject)
//   - DEFAULT_AGENT_ID, DEFAULT_ORG_ID
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storeConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./engram.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "engram"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "engram"),
		}
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "1536"))

	config := &Config{
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Embedder: EmbedderConfig{
			Provider:      getEnvOrDefault("EMBEDDING_PROVIDER", "noop"),
			APIKey:        os.Getenv("EMBEDDING_API_KEY"),
			BaseURL:       os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions:    dims,
			FailurePolicy: EmbedFailurePolicy(getEnvOrDefault("EMBEDDING_FAILURE_POLICY", string(EmbedFailError))),
		},
		Index: IndexConfig{
			Provider: getEnvOrDefault("INDEX_PROVIDER", "flat"),
			Path:     os.Getenv("INDEX_PATH"),
		},
		Security: SecurityConfig{
			EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		},
		Dedup:          DedupPolicy(getEnvOrDefault("DEDUP_POLICY", string(DedupAllow))),
		DefaultAgentID: os.Getenv("DEFAULT_AGENT_ID"),
		DefaultOrgID:   os.Getenv("DEFAULT_ORG_ID"),
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set and that enumerated fields
// hold known values. Returns an error wrapping ErrInvalidConfig on the
// first violation, nil otherwise.
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return NewEngineErrorRef("Validate", "store provider "+c.Store.Provider, ErrInvalidConfig)
	}

	switch c.Embedder.Provider {
	case "openai", "noop":
	default:
		return NewEngineErrorRef("Validate", "embedder provider "+c.Embedder.Provider, ErrInvalidConfig)
	}
	if c.Embedder.Dimensions <= 0 {
		return NewEngineErrorRef("Validate", "embedder dimensions", ErrInvalidConfig)
	}

	switch c.Index.Provider {
	case "", "flat", "chromem":
	default:
		return NewEngineErrorRef("Validate", "index provider "+c.Index.Provider, ErrInvalidConfig)
	}

	switch c.Dedup {
	case "", DedupAllow, DedupReject:
	default:
		return NewEngineErrorRef("Validate", "dedup policy "+string(c.Dedup), ErrInvalidConfig)
	}

	switch c.Embedder.FailurePolicy {
	case "", EmbedFailError, EmbedFailStale:
	default:
		return NewEngineErrorRef("Validate", "embed failure policy "+string(c.Embedder.FailurePolicy), ErrInvalidConfig)
	}

	if c.Score.SimilarityWeight < 0 || c.Score.ImportanceWeight < 0 {
		return NewEngineErrorRef("Validate", "score weights", ErrInvalidConfig)
	}

	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
