package memory

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingError reports an unavailable embedder or a malformed embedding.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexPersistError reports a failure writing or reloading index artifacts.
type IndexPersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *IndexPersistError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IndexPersistError) Unwrap() error { return e.Err }

// StoreError reports an unavailable key-value backend. It is the only memory
// error that fails a turn.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// vectorStage classifies a vector-path error for metrics.
func vectorStage(err error) string {
	var embedErr *EmbeddingError
	if errors.As(err, &embedErr) {
		return "embed"
	}
	var persistErr *IndexPersistError
	if errors.As(err, &persistErr) {
		return "persist"
	}
	return "index"
}
