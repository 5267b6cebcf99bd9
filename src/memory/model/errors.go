package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	errEmptyPayload  = errors.New("empty profile payload")
	errMissingUserID = errors.New("profile payload has no userId")
)

// EmbeddingError wraps a failure of the embedding provider.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error   { return e.Err }
func (e *EmbeddingError) Retryable() bool { return true }

// StoreError wraps a failure of the vector store.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store: %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error   { return e.Err }
func (e *StoreError) Retryable() bool { return true }

// CorruptProfileError reports a stored profile payload that cannot be parsed.
type CorruptProfileError struct {
	ID  string
	Err error
}

func (e *CorruptProfileError) Error() string {
	return fmt.Sprintf("corrupt profile %s: %v", e.ID, e.Err)
}

func (e *CorruptProfileError) Unwrap() error   { return e.Err }
func (e *CorruptProfileError) Retryable() bool { return false }

// IsRetryable reports whether err, or anything it wraps, is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var corrupt *CorruptProfileError
	if errors.As(err, &corrupt) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
