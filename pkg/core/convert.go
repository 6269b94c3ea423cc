package core

import (
	"encoding/json"
	"fmt"

	"github.com/engramdb/engram-go/pkg/storage"
)

// encryptedMetadataKey is the single key under which encrypted metadata
// is stored. The whole metadata map is serialized to JSON, encrypted,
// and kept as one base64 blob so individual keys leak nothing.
const encryptedMetadataKey = "_encrypted"

// toStorageMemory converts a core Record to its storage mirror,
// encrypting content and metadata when an encryptor is configured.
// The content hash always covers the plaintext.
func (c *Client) toStorageMemory(record *Record) (*storage.Memory, error) {
	memory := &storage.Memory{
		ID:             record.ID,
		AgentID:        record.AgentID,
		OrgID:          record.OrgID,
		Content:        record.Content,
		ContentHash:    record.ContentHash,
		Embedding:      record.Embedding,
		EmbeddingStale: record.Embedding == nil,
		Tags:           record.Tags,
		Importance:     record.Importance,
		MemoryType:     string(record.MemoryType),
		Scope:          string(record.Scope),
		Metadata:       record.Metadata,
		ExpiresAt:      record.ExpiresAt,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}

	if c.encryptor != nil {
		encrypted, err := c.encryptor.EncryptString(record.Content)
		if err != nil {
			return nil, err
		}
		memory.Content = encrypted

		if record.Metadata != nil {
			data, err := json.Marshal(record.Metadata)
			if err != nil {
				return nil, err
			}
			blob, err := c.encryptor.EncryptString(string(data))
			if err != nil {
				return nil, err
			}
			memory.Metadata = map[string]interface{}{encryptedMetadataKey: blob}
		}
	}

	return memory, nil
}

// decryptMemory decrypts a storage memory in place. It is a no-op when
// no encryptor is configured.
func (c *Client) decryptMemory(memory *storage.Memory) error {
	if c.encryptor == nil {
		return nil
	}

	content, err := c.encryptor.DecryptString(memory.Content)
	if err != nil {
		return fmt.Errorf("record %d: %w", memory.ID, err)
	}
	memory.Content = content

	if memory.Metadata != nil {
		blob, ok := memory.Metadata[encryptedMetadataKey].(string)
		if !ok {
			return fmt.Errorf("record %d: malformed encrypted metadata", memory.ID)
		}
		data, err := c.encryptor.DecryptString(blob)
		if err != nil {
			return fmt.Errorf("record %d: %w", memory.ID, err)
		}
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(data), &metadata); err != nil {
			return fmt.Errorf("record %d: %w", memory.ID, err)
		}
		memory.Metadata = metadata
	}

	return nil
}

// fromStorageMemory converts a decrypted storage memory to a core Record.
func fromStorageMemory(memory *storage.Memory) *Record {
	return &Record{
		ID:          memory.ID,
		AgentID:     memory.AgentID,
		OrgID:       memory.OrgID,
		Content:     memory.Content,
		ContentHash: memory.ContentHash,
		Embedding:   memory.Embedding,
		Tags:        memory.Tags,
		Importance:  memory.Importance,
		MemoryType:  MemoryType(memory.MemoryType),
		Scope:       Scope(memory.Scope),
		Metadata:    memory.Metadata,
		ExpiresAt:   memory.ExpiresAt,
		CreatedAt:   memory.CreatedAt,
		UpdatedAt:   memory.UpdatedAt,
		Score:       memory.Score,
	}
}

// toStorageCheckpoint converts a core Checkpoint to its storage mirror.
func toStorageCheckpoint(cp *Checkpoint) *storage.Checkpoint {
	return &storage.Checkpoint{
		ID:            cp.ID,
		ThreadID:      cp.ThreadID,
		AgentID:       cp.AgentID,
		BranchName:    cp.BranchName,
		ParentID:      cp.ParentID,
		MergeParentID: cp.MergeParentID,
		StateSnapshot: cp.StateSnapshot,
		Label:         cp.Label,
		CreatedAt:     cp.CreatedAt,
	}
}

// fromStorageCheckpoint converts a storage checkpoint to a core Checkpoint.
func fromStorageCheckpoint(cp *storage.Checkpoint) *Checkpoint {
	return &Checkpoint{
		ID:            cp.ID,
		ThreadID:      cp.ThreadID,
		AgentID:       cp.AgentID,
		BranchName:    cp.BranchName,
		ParentID:      cp.ParentID,
		MergeParentID: cp.MergeParentID,
		StateSnapshot: cp.StateSnapshot,
		Label:         cp.Label,
		CreatedAt:     cp.CreatedAt,
	}
}
