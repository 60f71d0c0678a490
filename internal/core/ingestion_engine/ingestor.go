package ingestion_engine

import "context"

type Ingestor interface {
	Start(ctx context.Context) error
	Enqueue(docID string)
	ProcessOne(ctx context.Context, docID string) error
	Stop()
}
