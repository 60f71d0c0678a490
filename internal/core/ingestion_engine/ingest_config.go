package ingestion_engine

import (
	"context"

	"github.com/panjf2000/ants/v2"

	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/models"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:     runes per chunk.
// ChunkOverlap:  runes shared between consecutive chunks for context bleed.
// EmbedBatch:    how many chunks to embed in one provider call.
// Workers:       goroutine pool size; documents ingest in parallel, one
//                document's steps stay sequential.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	EmbedBatch   int
	Workers      int
}

// DocumentStore is the slice of persistence the pipeline needs. core.DbClient
// satisfies it.
type DocumentStore interface {
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStage(ctx context.Context, id string, stage string, progress int, errorMessage string) error
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// db:        persistence for document rows and chunks.
// obj:       object storage holding the uploaded bytes.
// embedder:  embedding provider (Gemini/OpenAI/etc).
// extractor: bytes -> plain text.
// chunker:   text -> overlapping chunks.
// tracker:   externally readable per-document state machine.
// jobs:      in-memory queue of document IDs (easy to swap with Kafka later).
// pool:      ants worker pool executing one document per task.
type DocumentIngestor struct {
	db        DocumentStore
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	chunker   *Chunker
	tracker   *StatusTracker
	cfg       *IngestConfig
	jobs      chan string
	pool      *ants.Pool
}
