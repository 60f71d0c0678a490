package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/models"
)

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket}
}

// UploadAndCreate stores the raw bytes in object storage and creates the
// document row in the queued stage. The uploaded object is removed again if
// the row insert fails, so storage never accumulates orphans.
func (s *DocumentService) UploadAndCreate(ctx context.Context, userID, filename, contentType string, data io.Reader, sourceType string) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		FileName:    filename,
		StorageURL:  url,
		SourceType:  sourceType, // "upload" or "url"
		ContentType: contentType,
		Stage:       "queued",
		Progress:    0,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		_ = s.storage.DeleteFile(ctx, s.bucket, key)
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Open streams the stored source bytes of a document, e.g. for download.
// The caller must close the reader.
func (s *DocumentService) Open(ctx context.Context, doc *models.Document) (io.ReadCloser, error) {
	key, err := keyFromStorageURL(doc.StorageURL)
	if err != nil {
		return nil, err
	}
	return s.storage.GetObjectReader(ctx, s.bucket, key)
}

// keyFromStorageURL recovers the object key from the stored object URL.
func keyFromStorageURL(storageURL string) (string, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return "", fmt.Errorf("invalid storage url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("storage url has no object key: %s", storageURL)
	}
	return key, nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
