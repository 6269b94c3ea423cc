package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/engramdb/engram-go/pkg/storage"
)

// memoryColumns is the column list shared by all memory SELECTs.
const memoryColumns = `id, agent_id, org_id, content, content_hash, embedding, embedding_stale,
	tags, importance, memory_type, scope, metadata, expires_at, created_at, updated_at`

// checkpointColumns is the column list shared by all checkpoint SELECTs.
const checkpointColumns = `id, thread_id, agent_id, branch_name, parent_id, merge_parent_id,
	state_snapshot, label, created_at`

// encodeMemoryFields serializes the JSON-backed columns of a memory.
// The embedding column is NULL when no embedding is present.
func encodeMemoryFields(memory *storage.Memory) (embedding interface{}, tags, metadata string, err error) {
	if memory.Embedding != nil {
		data, err := json.Marshal(memory.Embedding)
		if err != nil {
			return nil, "", "", err
		}
		embedding = string(data)
	}

	tagsData, err := json.Marshal(memory.Tags)
	if err != nil {
		return nil, "", "", err
	}

	metadataData, err := json.Marshal(memory.Metadata)
	if err != nil {
		return nil, "", "", err
	}

	return embedding, string(tagsData), string(metadataData), nil
}

// scanMemory scans a memory from a database row or rows.
func scanMemory(scanner interface{}) (*storage.Memory, error) {
	var memory storage.Memory
	var embeddingStr sql.NullString
	var tagsStr sql.NullString
	var metadataStr sql.NullString
	var expiresAt sql.NullTime

	dest := []interface{}{
		&memory.ID,
		&memory.AgentID,
		&memory.OrgID,
		&memory.Content,
		&memory.ContentHash,
		&embeddingStr,
		&memory.EmbeddingStale,
		&tagsStr,
		&memory.Importance,
		&memory.MemoryType,
		&memory.Scope,
		&metadataStr,
		&expiresAt,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	}

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(dest...)
	case *sql.Rows:
		err = s.Scan(dest...)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	if embeddingStr.Valid && embeddingStr.String != "" {
		if err := json.Unmarshal([]byte(embeddingStr.String), &memory.Embedding); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
	}
	if tagsStr.Valid && tagsStr.String != "" {
		if err := json.Unmarshal([]byte(tagsStr.String), &memory.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &memory.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	if expiresAt.Valid {
		memory.ExpiresAt = &expiresAt.Time
	}

	return &memory, nil
}

// scanCheckpoint scans a checkpoint from a database row or rows.
func scanCheckpoint(scanner interface{}) (*storage.Checkpoint, error) {
	var cp storage.Checkpoint
	var parentID sql.NullInt64
	var mergeParentID sql.NullInt64

	dest := []interface{}{
		&cp.ID,
		&cp.ThreadID,
		&cp.AgentID,
		&cp.BranchName,
		&parentID,
		&mergeParentID,
		&cp.StateSnapshot,
		&cp.Label,
		&cp.CreatedAt,
	}

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(dest...)
	case *sql.Rows:
		err = s.Scan(dest...)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		cp.ParentID = &parentID.Int64
	}
	if mergeParentID.Valid {
		cp.MergeParentID = &mergeParentID.Int64
	}

	return &cp, nil
}

// matchesTags reports whether have contains every tag in want.
func matchesTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}
