// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"context"
	"sort"
	"strings"

	"github.com/engramdb/engram-go/pkg/storage"
)

// overfetchFactor controls how many index hits are pulled per requested
// result before visibility filters are applied. Hits the caller is not
// allowed to see are discarded after the index search, so the engine
// oversamples and widens the search until enough survive.
const overfetchFactor = 3

// Recall searches memories.
//
// With StrategySemantic (the default) the query is embedded and matched
// against the vector index by cosine similarity, then ranked by a
// weighted blend of similarity and importance. With StrategyExact the
// store is scanned for case-insensitive substring matches and ranked by
// importance alone.
//
// Visibility is evaluated at query time: private records are returned
// only to their owner, shared records to agents in the same
// organization, and global records to everyone. Expired records never
// match.
//
// A query that matches nothing returns an empty result, not an error.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - query: Search text (may be empty for exact strategy, where it
//     matches everything)
//   - opts: Optional settings (agent, strategy, limit, filters)
//
// Returns matching records ordered by descending score.
//
// Example:
//
//	result, err := client.Recall(ctx, "coffee preferences",
//	    core.WithAgentIDForRecall("agent_001"),
//	    core.WithLimit(5),
//	)
func (c *Client) Recall(ctx context.Context, query string, opts ...RecallOption) (*RecallResult, error) {
	options := newRecallOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.Limit <= 0 {
		return nil, NewEngineErrorRef("Recall", "limit must be positive", ErrInvalidArgument)
	}
	if options.MinImportance < 0 || options.MinImportance > 1 {
		return nil, NewEngineErrorRef("Recall", "min importance out of range", ErrInvalidArgument)
	}
	if options.MemoryType != "" && !options.MemoryType.Valid() {
		return nil, NewEngineErrorRef("Recall", "memory type "+string(options.MemoryType), ErrInvalidArgument)
	}

	agentID := c.agentOrDefault(options.AgentID)
	orgID := c.orgOrDefault(options.OrgID)

	c.mu.RLock()
	defer c.mu.RUnlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	switch options.Strategy {
	case StrategyExact:
		return c.recallExact(opCtx, query, agentID, orgID, options)
	case StrategySemantic, "":
		return c.recallSemantic(opCtx, query, agentID, orgID, options)
	default:
		return nil, NewEngineErrorRef("Recall", "strategy "+string(options.Strategy), ErrInvalidArgument)
	}
}

func (c *Client) recallSemantic(ctx context.Context, query string, agentID, orgID string, options *RecallOptions) (*RecallResult, error) {
	if query == "" {
		return nil, NewEngineErrorRef("Recall", "empty query", ErrInvalidArgument)
	}

	queryEmbedding, err := c.embedContent(ctx, query)
	if err != nil {
		return nil, NewEngineError("Recall", err)
	}

	indexSize := c.index.Size()
	if indexSize == 0 {
		return &RecallResult{Records: []*Record{}}, nil
	}

	// Oversample and widen until enough hits survive filtering or the
	// whole index has been scanned.
	var matched []*Record
	k := options.Limit * overfetchFactor
	for {
		if k > indexSize {
			k = indexSize
		}

		hits, err := c.index.Search(ctx, queryEmbedding, k)
		if err != nil {
			return nil, NewEngineError("Recall", err)
		}

		ids := make([]int64, len(hits))
		distance := make(map[int64]float64, len(hits))
		for i, hit := range hits {
			ids[i] = hit.ID
			distance[hit.ID] = hit.Distance
		}

		memories, err := c.getMemories(ctx, ids)
		if err != nil {
			return nil, NewEngineError("Recall", err)
		}

		matched = matched[:0]
		ws, wi := c.scoreWeights()
		for _, memory := range memories {
			if !passesFilters(memory, agentID, orgID, options) {
				continue
			}
			// Cosine distance is in [0, 2]; map to similarity in [0, 1].
			similarity := 1 - distance[memory.ID]/2
			memory.Score = ws*similarity + wi*memory.Importance
			matched = append(matched, fromStorageMemory(memory))
		}

		if len(matched) >= options.Limit || k >= indexSize {
			break
		}
		k *= 2
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if len(matched) > options.Limit {
		matched = matched[:options.Limit]
	}
	return &RecallResult{Records: matched, Total: total}, nil
}

func (c *Client) recallExact(ctx context.Context, query string, agentID, orgID string, options *RecallOptions) (*RecallResult, error) {
	needle := strings.ToLower(query)

	// Only the type filter can be pushed down; scope visibility needs
	// the caller's identity and tags need decrypted metadata.
	filter := &storage.Filter{MemoryType: string(options.MemoryType)}

	var matched []*Record
	var decryptErr error
	err := c.store.IterateMemories(ctx, filter, func(memory *storage.Memory) bool {
		if err := c.decryptMemory(memory); err != nil {
			decryptErr = err
			return false
		}
		if !passesFilters(memory, agentID, orgID, options) {
			return true
		}
		if needle != "" && !strings.Contains(strings.ToLower(memory.Content), needle) {
			return true
		}
		memory.Score = memory.Importance
		matched = append(matched, fromStorageMemory(memory))
		return true
	})
	if err != nil {
		return nil, NewEngineError("Recall", err)
	}
	if decryptErr != nil {
		return nil, NewEngineError("Recall", decryptErr)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if len(matched) > options.Limit {
		matched = matched[:options.Limit]
	}
	if matched == nil {
		matched = []*Record{}
	}
	return &RecallResult{Records: matched, Total: total}, nil
}

// passesFilters applies expiry, visibility, and option filters to a
// decrypted record on behalf of the given caller identity.
func passesFilters(memory *storage.Memory, agentID, orgID string, options *RecallOptions) bool {
	if memory.Expired() {
		return false
	}

	switch Scope(memory.Scope) {
	case ScopePrivate:
		if memory.AgentID != agentID {
			return false
		}
	case ScopeShared:
		if memory.AgentID != agentID && memory.OrgID != orgID {
			return false
		}
	case ScopeGlobal:
		// Visible to everyone.
	default:
		return false
	}

	if options.MemoryType != "" && memory.MemoryType != string(options.MemoryType) {
		return false
	}
	if memory.Importance < options.MinImportance {
		return false
	}
	if len(options.Tags) > 0 && !hasAllTags(memory.Tags, options.Tags) {
		return false
	}
	return true
}

// hasAllTags reports whether have contains every tag in want.
func hasAllTags(have, want []string) bool {
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
