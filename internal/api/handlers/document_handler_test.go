package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/core/ingestion_engine"
	"github.com/docuquery/docuquery/internal/models"
	"github.com/docuquery/docuquery/internal/services"
)

type fakeDB struct {
	docs   map[string]*models.Document
	chunks map[string][]models.DocumentChunk
}

func newFakeDB() *fakeDB {
	return &fakeDB{docs: map[string]*models.Document{}, chunks: map[string][]models.DocumentChunk{}}
}

func (f *fakeDB) CreateUser(ctx context.Context, user *models.User) error { return nil }
func (f *fakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

func (f *fakeDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return f.docs[id], nil
}

func (f *fakeDB) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDB) UpdateDocumentStage(ctx context.Context, id, stage string, progress int, errorMessage string) error {
	if d, ok := f.docs[id]; ok {
		d.Stage, d.Progress, d.ErrorMessage = stage, progress, errorMessage
	}
	return nil
}

func (f *fakeDB) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	for _, ch := range chunks {
		f.chunks[ch.DocumentID] = append(f.chunks[ch.DocumentID], ch)
	}
	return nil
}

func (f *fakeDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	return f.chunks[documentID], nil
}

func (f *fakeDB) SearchChunksLexical(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error) {
	return nil, nil
}

func (f *fakeDB) SearchChunksSemantic(ctx context.Context, userID string, queryVec []float32, topN int) ([]models.ScoredChunk, error) {
	return nil, nil
}

func (f *fakeDB) CreateChatSession(ctx context.Context, session *models.ChatSession) error { return nil }
func (f *fakeDB) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	return nil, nil
}

func (f *fakeDB) ListChatSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	return nil, nil
}
func (f *fakeDB) RenameChatSession(ctx context.Context, sessionID, name string) error { return nil }
func (f *fakeDB) AddChatMessage(ctx context.Context, message *models.ChatMessage) error {
	return nil
}

func (f *fakeDB) GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	return nil, nil
}
func (f *fakeDB) Close() error { return nil }

type fakeStorage struct {
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage { return &fakeStorage{objects: map[string][]byte{}} }

func (f *fakeStorage) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.objects[key] = b
	return "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key, nil
}

func (f *fakeStorage) DeleteFile(ctx context.Context, bucket, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return b, nil
}

func (f *fakeStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type fakeIngestor struct {
	enqueued []string
}

func (f *fakeIngestor) Start(ctx context.Context) error { return nil }
func (f *fakeIngestor) Enqueue(docID string)            { f.enqueued = append(f.enqueued, docID) }
func (f *fakeIngestor) ProcessOne(ctx context.Context, docID string) error {
	return nil
}
func (f *fakeIngestor) Stop() {}

func newTestRouter(db *fakeDB, storage *fakeStorage, ing *fakeIngestor, tracker *ingestion_engine.StatusTracker) http.Handler {
	cfg := &config.Config{MaxFileSize: 10 << 20, BucketName: "test-bucket"}
	docs := services.NewDocumentService(db, storage, cfg.BucketName)
	h := NewDocumentHandler(db, docs, ing, tracker, cfg)

	r := chi.NewRouter()
	r.Post("/api/documents/upload", h.UploadDocument)
	r.Post("/api/documents/batch/upload", h.UploadDocumentsBatch)
	r.Get("/api/documents/{documentID}/status", h.GetDocumentStatus)
	r.Get("/api/documents/{documentID}/chunks", h.GetDocumentChunks)
	r.Get("/api/documents/{documentID}/download", h.DownloadDocument)
	return r
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "user_id", userID))
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadDocument_RejectsUnsupportedExtension(t *testing.T) {
	db, storage, ing := newFakeDB(), newFakeStorage(), &fakeIngestor{}
	router := newTestRouter(db, storage, ing, ingestion_engine.NewStatusTracker())

	body, contentType := multipartBody(t, "file", map[string]string{"evil.exe": "MZ"})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, asUser(req, "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ing.enqueued)
	assert.Empty(t, storage.objects)
}

func TestUploadDocumentsBatch_MixedResults(t *testing.T) {
	db, storage, ing := newFakeDB(), newFakeStorage(), &fakeIngestor{}
	router := newTestRouter(db, storage, ing, ingestion_engine.NewStatusTracker())

	body, contentType := multipartBody(t, "files", map[string]string{
		"notes.txt":  "some notes",
		"report.pdf": "%PDF-1.4 fake",
		"evil.exe":   "MZ",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, asUser(req, "user-1"))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var results []BatchUploadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results, 3)

	okCount, failCount := 0, 0
	for _, res := range results {
		if res.Error != "" {
			failCount++
			assert.Equal(t, "evil.exe", res.FileName)
			assert.Nil(t, res.Document)
			continue
		}
		okCount++
		require.NotNil(t, res.Document)
		assert.Equal(t, "user-1", res.Document.UserID)
		assert.Equal(t, "queued", res.Document.Stage)
	}
	assert.Equal(t, 2, okCount)
	assert.Equal(t, 1, failCount)

	// Only the accepted files reached storage and the ingest queue.
	assert.Len(t, ing.enqueued, 2)
	assert.Len(t, storage.objects, 2)
	assert.Len(t, db.docs, 2)
}

func TestUploadDocumentsBatch_EmptyForm(t *testing.T) {
	router := newTestRouter(newFakeDB(), newFakeStorage(), &fakeIngestor{}, ingestion_engine.NewStatusTracker())

	body, contentType := multipartBody(t, "other", map[string]string{"notes.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, asUser(req, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocumentChunks_OwnershipEnforced(t *testing.T) {
	db, storage, ing := newFakeDB(), newFakeStorage(), &fakeIngestor{}
	db.docs["doc-1"] = &models.Document{ID: "doc-1", UserID: "user-1"}
	db.chunks["doc-1"] = []models.DocumentChunk{
		{ID: "c1", DocumentID: "doc-1", UserID: "user-1", Position: 0, Text: "alpha"},
		{ID: "c2", DocumentID: "doc-1", UserID: "user-1", Position: 1, Text: "beta"},
	}
	router := newTestRouter(db, storage, ing, ingestion_engine.NewStatusTracker())

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/chunks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var chunks []models.DocumentChunk
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&chunks))
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha", chunks[0].Text)

	// Another user's request reads as not found, never as forbidden.
	req = httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/chunks", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "user-2"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadDocument_StreamsOriginalBytes(t *testing.T) {
	db, storage, ing := newFakeDB(), newFakeStorage(), &fakeIngestor{}
	storage.objects["users/user-1/documents/doc-1/notes.txt"] = []byte("original content")
	db.docs["doc-1"] = &models.Document{
		ID:          "doc-1",
		UserID:      "user-1",
		FileName:    "notes.txt",
		ContentType: "text/plain",
		StorageURL:  "https://test-bucket.s3.us-east-2.amazonaws.com/users/user-1/documents/doc-1/notes.txt",
	}
	router := newTestRouter(db, storage, ing, ingestion_engine.NewStatusTracker())

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")
	assert.Equal(t, "original content", rec.Body.String())
}

func TestGetDocumentStatus_FallsBackToDocumentRow(t *testing.T) {
	db, storage, ing := newFakeDB(), newFakeStorage(), &fakeIngestor{}
	db.docs["doc-1"] = &models.Document{
		ID: "doc-1", UserID: "user-1", Stage: "error", Progress: 0, ErrorMessage: "no extractable text",
	}
	router := newTestRouter(db, storage, ing, ingestion_engine.NewStatusTracker())

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var st ingestion_engine.IngestionStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, ingestion_engine.StageError, st.Stage)
	assert.Equal(t, "no extractable text", st.ErrorMessage)
}
