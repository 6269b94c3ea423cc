// Package core provides the main Engram client and memory engine functionality.
package core

import (
	"errors"
	"fmt"
	"strconv"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested record or checkpoint was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidArgument indicates that the provided input is invalid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage indicates that a storage operation failed.
	ErrStorage = errors.New("storage operation failed")

	// ErrEmbeddingUnavailable indicates that embedding generation failed
	// after retries were exhausted.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrDuplicate indicates that a record with the same content already
	// exists for the agent.
	ErrDuplicate = errors.New("duplicate content")

	// ErrIntegrity indicates that stored content does not match its
	// recorded hash.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrIndexCorrupt indicates that persisted index files are
	// inconsistent and the index must be rebuilt.
	ErrIndexCorrupt = errors.New("index corrupt")
)

// EngineError wraps errors with operation context.
//
// It records which operation failed and, when relevant, which record,
// checkpoint, or thread it was operating on.
//
// Example:
//
//	err := &EngineError{
//	    Op:  "Remember",
//	    Err: ErrEmbeddingUnavailable,
//	}
//	// Error() returns: "engram: Remember: embedding unavailable"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Ref identifies the record, checkpoint, or thread involved (optional).
	Ref string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is "engram: <Op>: <Err>", with the Ref inserted after the
// operation when present.
func (e *EngineError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("engram: %s: %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("engram: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewEngineError("Remember", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Remember", "Recall", "Merge")
//   - err: The underlying error to wrap
//
// Returns an EngineError, or nil if err is nil.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

// refID formats a record or checkpoint ID for use as an error Ref.
func refID(id int64) string {
	return "record " + strconv.FormatInt(id, 10)
}

// NewEngineErrorRef creates a new EngineError carrying a reference to
// the record, checkpoint, or thread involved. Returns nil if err is nil.
func NewEngineErrorRef(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:  op,
		Ref: ref,
		Err: err,
	}
}
