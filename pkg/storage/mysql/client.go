// Package mysql provides the MySQL implementation of the relational store.
//
// MySQL (and compatible servers) is suited to deployments standardized
// on the MySQL protocol. Vectors are stored as JSON strings in TEXT
// columns; similarity search happens in the vector index, not here.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/engramdb/engram-go/pkg/storage"
)

// Client implements storage.Store using MySQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a MySQL store.
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
}

// NewClient creates a new MySQL store.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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
			agent_id VARCHAR(255) NOT NULL,
			org_id VARCHAR(255) NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash VARCHAR(64) NOT NULL,
			embedding LONGTEXT,
			embedding_stale BOOLEAN NOT NULL DEFAULT FALSE,
			tags TEXT,
			importance DOUBLE NOT NULL DEFAULT 0.5,
			memory_type VARCHAR(32) NOT NULL,
			scope VARCHAR(32) NOT NULL,
			metadata TEXT,
			expires_at DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_memories_agent (agent_id),
			INDEX idx_memories_hash (agent_id, content_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id BIGINT PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL,
			agent_id VARCHAR(255) NOT NULL DEFAULT '',
			branch_name VARCHAR(255) NOT NULL,
			parent_id BIGINT NULL,
			merge_parent_id BIGINT NULL,
			state_snapshot LONGBLOB,
			label VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME(6) NOT NULL,
			INDEX idx_checkpoints_thread (thread_id, branch_name)
		)`,
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memories WHERE id IN (%s)
	`, memoryColumns, placeholders), args...)
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
		result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
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
		SET content = ?, content_hash = ?, embedding = NULL, embedding_stale = TRUE, updated_at = ?
		WHERE id = ?
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
		UPDATE memories SET embedding = ?, embedding_stale = FALSE, updated_at = ? WHERE id = ?
	`, string(embeddingJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryEmbedding: %w", err)
	}
	return nil
}

// UpdateMemoryScope changes a record's visibility scope.
func (c *Client) UpdateMemoryScope(ctx context.Context, id int64, scope string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories SET scope = ?, updated_at = ? WHERE id = ?
	`, scope, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryScope: %w", err)
	}
	return nil
}

// UpdateMemoryOwner transfers a record to another agent and organization.
func (c *Client) UpdateMemoryOwner(ctx context.Context, id int64, agentID, orgID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories SET agent_id = ?, org_id = ?, updated_at = ? WHERE id = ?
	`, agentID, orgID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateMemoryOwner: %w", err)
	}
	return nil
}

// UpdateMemoryImportance sets a record's importance weight.
func (c *Client) UpdateMemoryImportance(ctx context.Context, id int64, importance float64) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE memories SET importance = ?, updated_at = ? WHERE id = ?
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
		SELECT %s FROM memories WHERE agent_id = ? AND content_hash = ? ORDER BY id LIMIT 1
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
		SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DeleteExpired: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = c.db.ExecContext(ctx, `
		DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, now)
	if err != nil {
		return nil, fmt.Errorf("DeleteExpired: %w", err)
	}

	return ids, nil
}

// InsertCheckpoint inserts a checkpoint row.
func (c *Client) InsertCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(id, thread_id, agent_id, branch_name, parent_id, merge_parent_id, state_snapshot, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		SELECT %s FROM checkpoints WHERE id = ?
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
		SELECT %s FROM checkpoints WHERE thread_id = ? AND branch_name = ? ORDER BY id DESC LIMIT 1
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
	query := fmt.Sprintf(`SELECT %s FROM checkpoints WHERE thread_id = ?`, checkpointColumns)
	args := []interface{}{threadID}
	if branchName != "" {
		query += ` AND branch_name = ?`
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
		SELECT COUNT(1) FROM checkpoints WHERE thread_id = ?
	`, threadID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ThreadExists: %w", err)
	}
	return count > 0, nil
}

// DeleteThread removes all checkpoints for a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
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

	if filter.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.OrgID != "" {
		conditions = append(conditions, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, filter.Scope)
	}
	if filter.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, filter.MemoryType)
	}
	if !filter.IncludeExpired {
		conditions = append(conditions, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, time.Now().UTC())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
