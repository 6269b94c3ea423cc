// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"context"
	"sync"
)

// AsyncClient provides asynchronous Engram operations.
//
// It wraps the synchronous Client and executes operations in separate
// goroutines, making it suitable for callers that fire off several
// memory operations concurrently.
//
// All async methods return channels that receive the result when the
// operation completes. The client tracks its goroutines and provides
// Wait() to ensure all operations finish.
//
// Example:
//
//	asyncClient, _ := core.NewAsyncClient(config)
//	defer asyncClient.Close()
//
//	resultChan := asyncClient.RememberAsync(ctx, "User prefers short answers",
//	    core.WithAgentID("agent_001"))
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// NewAsyncClient creates a new asynchronous Engram client.
//
// Parameters:
//   - cfg: Engine configuration
//
// Returns:
//   - *AsyncClient: The asynchronous client instance
//   - error: Error if configuration is invalid or initialization fails
func NewAsyncClient(cfg *Config) (*AsyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AsyncClient{
		Client: client,
	}, nil
}

// RememberAsync stores a memory asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - content: Memory content to store
//   - opts: Optional settings (agent, tags, importance, scope, TTL, ...)
//
// Returns:
//   - <-chan *RecordResult: Channel that receives the stored record and error
func (ac *AsyncClient) RememberAsync(ctx context.Context, content string, opts ...RememberOption) <-chan *RecordResult {
	resultChan := make(chan *RecordResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		record, err := ac.Remember(ctx, content, opts...)
		resultChan <- &RecordResult{
			Record: record,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// RecallAsync searches memories asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - query: Search query text
//   - opts: Optional settings (agent, strategy, limit, filters)
//
// Returns:
//   - <-chan *AsyncRecallResult: Channel that receives the recall result and error
func (ac *AsyncClient) RecallAsync(ctx context.Context, query string, opts ...RecallOption) <-chan *AsyncRecallResult {
	resultChan := make(chan *AsyncRecallResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		result, err := ac.Recall(ctx, query, opts...)
		resultChan <- &AsyncRecallResult{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// ForgetAsync deletes memories asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - ids: Record IDs to delete
//
// Returns:
//   - <-chan *AsyncForgetResult: Channel that receives per-record outcomes and error
func (ac *AsyncClient) ForgetAsync(ctx context.Context, ids []int64) <-chan *AsyncForgetResult {
	resultChan := make(chan *AsyncForgetResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		result, err := ac.Forget(ctx, ids)
		resultChan <- &AsyncForgetResult{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// CheckpointAsync saves a state snapshot asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - threadID: Conversation thread
//   - state: Opaque serialized state to snapshot
//   - opts: Optional settings (branch, label, agent)
//
// Returns:
//   - <-chan *CheckpointResult: Channel that receives the checkpoint and error
func (ac *AsyncClient) CheckpointAsync(ctx context.Context, threadID string, state []byte, opts ...CheckpointOption) <-chan *CheckpointResult {
	resultChan := make(chan *CheckpointResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		cp, err := ac.Checkpoint(ctx, threadID, state, opts...)
		resultChan <- &CheckpointResult{
			Checkpoint: cp,
			Error:      err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait waits for all asynchronous operations to complete.
//
// It blocks until all goroutines started by async methods have
// finished. Call it before program exit to ensure all operations
// complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close closes the asynchronous client.
//
// It first waits for all asynchronous operations to complete, then
// closes the underlying client.
func (ac *AsyncClient) Close() error {
	ac.Wait()
	return ac.Client.Close()
}

// RecordResult contains the result of an asynchronous record operation.
type RecordResult struct {
	// Record is the record returned by the operation (nil if error occurred).
	Record *Record

	// Error is the error returned by the operation (nil if operation succeeded).
	Error error
}

// AsyncRecallResult contains the result of an asynchronous recall.
type AsyncRecallResult struct {
	// Result holds the matching records.
	Result *RecallResult

	// Error is the error returned by the operation (nil if operation succeeded).
	Error error
}

// AsyncForgetResult contains the result of an asynchronous forget.
type AsyncForgetResult struct {
	// Result holds the per-record outcomes.
	Result *ForgetResult

	// Error is the error returned by the operation (nil if operation succeeded).
	Error error
}

// CheckpointResult contains the result of an asynchronous checkpoint.
type CheckpointResult struct {
	// Checkpoint is the created checkpoint (nil if error occurred).
	Checkpoint *Checkpoint

	// Error is the error returned by the operation (nil if operation succeeded).
	Error error
}
