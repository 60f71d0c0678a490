package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/models"
)

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(db DocumentStore, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.DocumentExtractor, tracker *StatusTracker, cfg *IngestConfig) *DocumentIngestor {
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &DocumentIngestor{
		db: db, obj: obj, embedder: emb, extractor: extractor,
		chunker: NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		tracker: tracker,
		cfg:     cfg,
		jobs:    make(chan string, 64),
	}
}

// Start creates the worker pool and runs the dispatcher goroutine. Each job
// runs on its own pool worker; distinct documents ingest in parallel while a
// single document's steps stay strictly sequential.
func (i *DocumentIngestor) Start(ctx context.Context) error {
	pool, err := ants.NewPool(i.cfg.Workers)
	if err != nil {
		return fmt.Errorf("ingest pool: %w", err)
	}
	i.pool = pool

	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Println("DocumentIngestor: dispatcher shutting down.")
				return
			case docID := <-i.jobs:
				id := docID
				if err := i.pool.Submit(func() {
					if err := i.ProcessOne(ctx, id); err != nil {
						log.Printf("DocumentIngestor: document %s failed: %v", id, err)
					}
				}); err != nil {
					log.Printf("DocumentIngestor: submit %s: %v", id, err)
				}
			}
		}
	}()
	return nil
}

// Stop releases the worker pool. Queued jobs that never started are dropped.
func (i *DocumentIngestor) Stop() {
	if i.pool != nil {
		i.pool.Release()
	}
}

// Enqueue schedules a document ID for ingestion and marks it queued.
// A document that previously ended in the error stage is re-ingestable:
// its frozen record is dropped so the new run starts from queued.
// If the queue is full, this call will block until space frees up.
func (i *DocumentIngestor) Enqueue(docID string) {
	if st, ok := i.tracker.Get(docID); ok && st.Stage == StageError {
		i.tracker.Forget(docID)
	}
	i.tracker.Set(docID, StageQueued)
	i.jobs <- docID
}

// ProcessOne drives a single document from stored bytes to indexed chunks,
// or to a recorded failure. Every failure is absorbed here: it is written to
// the tracker and the documents table, never propagated into the worker loop.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) (err error) {
	// A detached timeout so an in-flight ingestion is not cancelled by the
	// caller; a queued document runs to complete or error.
	proctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil || doc == nil {
		if err == nil {
			err = fmt.Errorf("document not found: %s", docID)
		}
		i.fail(proctx, docID, "", err.Error())
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("ingestion panic: %v", r)
			log.Printf("DocumentIngestor: doc=%s user=%s %s", docID, doc.UserID, msg)
			i.fail(proctx, docID, doc.UserID, msg)
			err = fmt.Errorf("%s", msg)
		}
	}()

	// Stage 1: load the source bytes and extract text.
	i.setStage(proctx, docID, StageLoading)
	bucket, key := parseS3URL(doc.StorageURL)
	data, err := i.obj.GetFile(proctx, bucket, key)
	if err != nil {
		i.fail(proctx, docID, doc.UserID, fmt.Sprintf("load source: %v", err))
		return err
	}

	text, err := i.extractor.ExtractText(proctx, data, doc.ContentType)
	if err != nil || strings.TrimSpace(text) == "" {
		var extErr *core.ExtractionError
		if err != nil && !errors.As(err, &extErr) {
			i.fail(proctx, docID, doc.UserID, fmt.Sprintf("extract: %v", err))
			return err
		}
		i.fail(proctx, docID, doc.UserID, "no extractable text")
		if err == nil {
			err = &core.ExtractionError{ContentType: doc.ContentType}
		}
		return err
	}
	log.Printf("DocumentIngestor: doc=%s user=%s extracted %d bytes of text", docID, doc.UserID, len(text))

	// Stage 2: split into overlapping chunks.
	i.setStage(proctx, docID, StageChunking)
	chunks, err := i.chunker.Split(text)
	if err != nil {
		i.fail(proctx, docID, doc.UserID, "no valid chunks")
		return err
	}
	log.Printf("DocumentIngestor: doc=%s user=%s chunked into %d pieces", docID, doc.UserID, len(chunks))

	// Stages 3+4: embed then store. Reported as distinct milestones but
	// treated as one logical unit: failure during either reads the same.
	i.setStage(proctx, docID, StageEmbedding)
	rows, err := i.embedChunks(proctx, doc, chunks)
	if err != nil {
		ierr := &core.IndexingError{Err: err}
		i.fail(proctx, docID, doc.UserID, ierr.Error())
		return ierr
	}

	i.setStage(proctx, docID, StageStoring)
	if err := i.db.InsertDocumentChunks(proctx, rows); err != nil {
		ierr := &core.IndexingError{Err: err}
		i.fail(proctx, docID, doc.UserID, ierr.Error())
		return ierr
	}

	i.setStage(proctx, docID, StageComplete)
	log.Printf("DocumentIngestor: doc=%s user=%s ingested (%d chunks)", docID, doc.UserID, len(rows))
	return nil
}

// embedChunks embeds the chunk texts in batches and tags every row with the
// owning document and user. The rows are returned unwritten so the caller
// can persist them in a single transaction: a failed ingestion must not
// leave partial chunks visible to queries.
func (i *DocumentIngestor) embedChunks(ctx context.Context, doc *models.Document, chunks []Chunk) ([]models.DocumentChunk, error) {
	rows := make([]models.DocumentChunk, 0, len(chunks))

	for start := 0; start < len(chunks); start += i.cfg.EmbedBatch {
		end := start + i.cfg.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for k := range batch {
			texts[k] = batch[k].Text
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
		}

		for k := range batch {
			rows = append(rows, models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				UserID:     doc.UserID,
				Position:   batch[k].Pos,
				Text:       batch[k].Text,
				Embedding:  vecs[k],
			})
		}
	}
	return rows, nil
}

// setStage writes the stage to the tracker and mirrors it to the documents
// table. The mirror write is best-effort; the tracker stays authoritative
// for polling.
func (i *DocumentIngestor) setStage(ctx context.Context, docID string, stage IngestionStage) {
	i.tracker.Set(docID, stage)
	if err := i.db.UpdateDocumentStage(ctx, docID, string(stage), defaultProgress[stage], ""); err != nil {
		log.Printf("DocumentIngestor: mirror stage %s for doc %s: %v", stage, docID, err)
	}
}

func (i *DocumentIngestor) fail(ctx context.Context, docID, userID, msg string) {
	msg = TruncateErrorMessage(msg)
	log.Printf("DocumentIngestor: doc=%s user=%s error: %s", docID, userID, msg)
	i.tracker.SetError(docID, msg)
	if err := i.db.UpdateDocumentStage(ctx, docID, string(StageError), 0, msg); err != nil {
		log.Printf("DocumentIngestor: mirror error for doc %s: %v", docID, err)
	}
}

// parseS3URL extracts the bucket and key from a typical virtual-hosted-style
// S3 URL. Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
