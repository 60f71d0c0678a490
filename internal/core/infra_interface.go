package core

import (
	"context"
	"io"

	"github.com/docuquery/docuquery/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStage(ctx context.Context, id string, stage string, progress int, errorMessage string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)

	// SearchChunksLexical ranks a user's chunks by full-text relevance
	// (ts_rank over the tsvector column). Results never cross user_id.
	SearchChunksLexical(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error)

	// SearchChunksSemantic ranks a user's chunks by cosine similarity to the
	// query embedding. Results never cross user_id.
	SearchChunksSemantic(ctx context.Context, userID string, queryVec []float32, topN int) ([]models.ScoredChunk, error)

	CreateChatSession(ctx context.Context, session *models.ChatSession) error
	GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	ListChatSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error)
	RenameChatSession(ctx context.Context, sessionID, name string) error
	AddChatMessage(ctx context.Context, message *models.ChatMessage) error
	GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
