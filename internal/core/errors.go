package core

import (
	"errors"
	"fmt"
)

// ErrRetrievalUnavailable is returned by the hybrid retriever when every
// index adapter failed for a query. One surviving adapter is enough to
// serve degraded results instead.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable: all index adapters failed")

// ExtractionError means a file produced no usable text after every fallback.
// Terminal for the document; retrying the same bytes will not help.
type ExtractionError struct {
	ContentType string
	Err         error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %q: %v", e.ContentType, e.Err)
	}
	return fmt.Sprintf("extract %q: no extractable text", e.ContentType)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ChunkingError means extracted text yielded zero usable chunks. Kept apart
// from ExtractionError so operators can tell "unreadable file" from
// "readable but empty after splitting".
type ChunkingError struct {
	Err error
}

func (e *ChunkingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunking: %v", e.Err)
	}
	return "chunking: no valid chunks"
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// IndexingError means the embedding/storage collaborator failed. Terminal for
// this attempt; the caller may re-enqueue the document as a fresh ingestion.
type IndexingError struct {
	Err error
}

func (e *IndexingError) Error() string { return fmt.Sprintf("indexing: %v", e.Err) }

func (e *IndexingError) Unwrap() error { return e.Err }
