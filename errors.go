package papyrus

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an empty retrieval set. It is a normal branch for the
// router, not a failure: a missing summary routes to the chunk path and
// vice versa.
var ErrNotFound = errors.New("not found")

// ExtractionError wraps a failure to parse raw document bytes.
type ExtractionError struct {
	Source string // filename or document id
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EncodingError wraps a failure of the embedding call.
type EncodingError struct {
	Stage string // "summary", "children", "query"
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Stage, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// GenerationError wraps a language-model call failure, including mid-stream.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: generate: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError wraps a transactional write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
