// Package storage provides persistence for modsentry: the Store interface
// consumed by the engine, an in-memory implementation, a Redis-backed
// implementation, and a ClickHouse moderation-action log.
package storage

import (
	"errors"
	"fmt"
)

// Storage error types for categorizing persistence failures.
var (
	// ErrUnavailable indicates a transient backend failure. Callers in the
	// detection path log it and continue on in-memory values.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidData indicates invalid data was provided.
	ErrInvalidData = errors.New("storage: invalid data")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("storage: closed")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op  string // Operation that failed (e.g., "RecordAction", "GetConfig")
	Key string // Record key involved, if applicable
	Err error  // Underlying error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage.%s(%s): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}
