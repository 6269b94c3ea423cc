// Package postgres provides the PostgreSQL implementation of the relational store.
//
// PostgreSQL is suited to multi-node deployments where several engine
// instances share one database. Vectors are stored as JSON strings in
// TEXT columns; similarity search happens in the vector index, not here.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/engramdb/engram-go/pkg/storage"
)

// Client implements storage.Store using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a PostgreSQL store.
type Config struct {
	// Host is the database server hostname.
	Host string

	// Port is the database server port.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// Database is the database name.
	Database string

	// SSLMode is the libpq sslmode setting. Defaults to "disable".
	SSLMode string
}

// NewClient creates a new PostgreSQL store.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id BIGINT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			org_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			embedding TEXT,
			embedding_stale BOOLEAN NOT NULL DEFAULT FALSE,
			tags TEXT,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			memory_type TEXT NOT NULL,
			scope TEXT NOT NULL,
			metadata TEXT,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(agent_id, content_hash)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id BIGINT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			branch_name TEXT NOT NULL,
			parent_id BIGINT,
			merge_parent_id BIGINT,
			state_snapshot BYTEA,
			label TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, branch_name)`,
	}

	for _, query := range queries {
		if _, err := c.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// InsertMemory inserts a memory record.
func (c *Client) InsertMemory(ctx context.Context, memory *storage.Memory) error {
	embeddingJSON, tagsJSON, metadataJSON, err := encodeMemoryFields(memory)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, agent_id, org_id, content, content_hash, embedding, embedding_stale,
		 tags, importance, memory_type, scope, metadata, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		memory.ID,
		memory.AgentID,
		memory.OrgID,
		memory.Content,
		memory.ContentHash,
		embeddingJSON,
		memory.EmbeddingStale,
		tagsJSON,
		memory.Importance,
		memory.MemoryType,
		memory.Scope,
		metadataJSON,
		memory.ExpiresAt,
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	return nil
}

// GetMemories retrieves records by ID, preserving the input order and
// omitting IDs that do not exist.
func (c *Client) GetMemories(ctx context.Context, ids []int64) ([]*storage.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memories WHERE id IN (%s)
	`, memoryColumns, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("GetMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[int64]*storage.Memory, len(ids))
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("GetMemories: %w", err)
		}
		byID[memory.ID] = memory
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetMemories: %w", err)
	}

	memories := make([]*storage.Memory, 0, len(byID))
	for _, id := range ids {
		if memory, ok := byID[id]; ok {
			memories = append(memories, memory)
		}
	}
	return memories, nil
}

// DeleteMemories deletes records by ID and returns the IDs actually deleted.
func (c *Client) DeleteMemories(ctx context.Context, ids []int64) ([]int64, error) {
	var deleted []int64
	for _, id := range ids {
		result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
		if err != nil {
			return deleted, fmt.Errorf("DeleteMemories: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("DeleteMemories: %w", err)
		}
		if affected > 0 {
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

// UpdateMemoryContent replaces content, clears the embedding, and marks it stale.
func (c *Client) UpdateMemoryContent(ctx context.Context, id int64, content, contentHash string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories
		SET content = $1, content_hash = $2, embedding = NULL, embedding_stale = TRUE, updated_at = $3
		WHERE id = $4
	`, content, contentHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryContent: %w", err)
	}
	return nil
}

// UpdateMemoryEmbedding stores a fresh embedding and clears the stale flag.
func (c *Client) UpdateMemoryEmbedding(ctx context.Context, id int64, embedding []float64) error {
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("UpdateMemoryEmbedding: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		UPDATE memories SET embedding = $1, embedding_stale = FALSE, updated_at = $2 WHERE id = $3
	`, string(embeddingJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryEmbedding: %w", err)
	}
	return nil
}

// UpdateMemoryScope changes a record's visibility scope.
func (c *Client) UpdateMemoryScope(ctx context.Context, id int64, scope string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories SET scope = $1, updated_at = $2 WHERE id = $3
	`, scope, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryScope: %w", err)
	}
	return nil
}

// UpdateMemoryOwner transfers a record to another agent and organization.
func (c *Client) UpdateMemoryOwner(ctx context.Context, id int64, agentID, orgID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories SET agent_id = $1, org_id = $2, updated_at = $3 WHERE id = $4
	`, agentID, orgID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryOwner: %w", err)
	}
	return nil
}

// UpdateMemoryImportance sets a record's importance weight.
func (c *Client) UpdateMemoryImportance(ctx context.Context, id int64, importance float64) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories SET importance = $1, updated_at = $2 WHERE id = $3
	`, importance, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryImportance: %w", err)
	}
	return nil
}

// FindByContentHash returns the first record owned by agentID with the
// given content hash, or nil when none exists.
func (c *Client) FindByContentHash(ctx context.Context, agentID, contentHash string) (*storage.Memory, error) {
	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memories WHERE agent_id = $1 AND content_hash = $2 ORDER BY id LIMIT 1
	`, memoryColumns), agentID, contentHash)

	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByContentHash: %w", err)
	}
	return memory, nil
}

// IterateMemories streams records matching the filter in ascending ID order.
func (c *Client) IterateMemories(ctx context.Context, filter *storage.Filter, fn func(*storage.Memory) bool) error {
	if filter == nil {
		filter = &storage.Filter{}
	}

	whereClause, args := buildFilterClause(filter)
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memories %s ORDER BY id
	`, memoryColumns, whereClause), args...)
	if err != nil {
		return fmt.Errorf("IterateMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return fmt.Errorf("IterateMemories: %w", err)
		}
		if !matchesTags(memory.Tags, filter.Tags) {
			continue
		}
		if !fn(memory) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("IterateMemories: %w", err)
	}
	return nil
}

// ListStaleEmbeddings returns IDs of records needing embedding recomputation.
func (c *Client) ListStaleEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	query := `SELECT id FROM memories WHERE embedding_stale = TRUE ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListStaleEmbeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListStaleEmbeddings: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpired removes records whose expiry has passed.
func (c *Client) DeleteExpired(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, `
		DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= $1 RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("DeleteExpired: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("DeleteExpired: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertCheckpoint inserts a checkpoint row.
func (c *Client) InsertCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(id, thread_id, agent_id, branch_name, parent_id, merge_parent_id, state_snapshot, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		cp.ID,
		cp.ThreadID,
		cp.AgentID,
		cp.BranchName,
		cp.ParentID,
		cp.MergeParentID,
		cp.StateSnapshot,
		cp.Label,
		cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertCheckpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID, or nil when absent.
func (c *Client) GetCheckpoint(ctx context.Context, id int64) (*storage.Checkpoint, error) {
	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM checkpoints WHERE id = $1
	`, checkpointColumns), id)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCheckpoint: %w", err)
	}
	return cp, nil
}

// LatestCheckpoint returns the newest checkpoint on a branch, or nil.
func (c *Client) LatestCheckpoint(ctx context.Context, threadID, branchName string) (*storage.Checkpoint, error) {
	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM checkpoints WHERE thread_id = $1 AND branch_name = $2 ORDER BY id DESC LIMIT 1
	`, checkpointColumns), threadID, branchName)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestCheckpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns checkpoints for a thread, newest first.
func (c *Client) ListCheckpoints(ctx context.Context, threadID, branchName string) ([]*storage.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM checkpoints WHERE thread_id = $1`, checkpointColumns)
	args := []interface{}{threadID}
	if branchName != "" {
		query += ` AND branch_name = $2`
		args = append(args, branchName)
	}
	query += ` ORDER BY id DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListCheckpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checkpoints []*storage.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCheckpoints: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// ThreadExists reports whether any checkpoint exists for the thread.
func (c *Client) ThreadExists(ctx context.Context, threadID string) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM checkpoints WHERE thread_id = $1
	`, threadID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ThreadExists: %w", err)
	}
	return count > 0, nil
}

// DeleteThread removes all checkpoints for a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return 0, fmt.Errorf("DeleteThread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteThread: %w", err)
	}
	return affected, nil
}

// Reset removes all memories and checkpoints.
func (c *Client) Reset(ctx context.Context) error {
	for _, query := range []string{`DELETE FROM memories`, `DELETE FROM checkpoints`} {
		if _, err := c.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("Reset: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// buildFilterClause builds a WHERE clause from a filter.
//
// Tag subset matching is done in Go by the caller; everything else is
// pushed down to SQL.
func buildFilterClause(filter *storage.Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(expr string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(expr, len(args)+1))
		args = append(args, value)
	}

	if filter.AgentID != "" {
		add("agent_id = $%d", filter.AgentID)
	}
	if filter.OrgID != "" {
		add("org_id = $%d", filter.OrgID)
	}
	if filter.Scope != "" {
		add("scope = $%d", filter.Scope)
	}
	if filter.MemoryType != "" {
		add("memory_type = $%d", filter.MemoryType)
	}
	if !filter.IncludeExpired {
		add("(expires_at IS NULL OR expires_at > $%d)", time.Now().UTC())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
