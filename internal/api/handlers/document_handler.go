package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/core/ingestion_engine"
	"github.com/docuquery/docuquery/internal/models"
	"github.com/docuquery/docuquery/internal/services"
)

// allowedExtensions is the upload allow-list; everything else is rejected
// before any bytes reach storage.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
	".csv":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

type DocumentHandler struct {
	dbclient core.DbClient
	docs     *services.DocumentService
	ingestor ingestion_engine.Ingestor
	tracker  *ingestion_engine.StatusTracker
	cfg      *config.Config
}

func NewDocumentHandler(dbclient core.DbClient, docs *services.DocumentService, ing ingestion_engine.Ingestor, tracker *ingestion_engine.StatusTracker, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, docs: docs, ingestor: ing, tracker: tracker, cfg: cfg}
}

// UploadDocument handles file upload, DB insert, and background processing.
// Ingestion failures are never surfaced here; the client polls the status
// endpoint with the returned document id.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	doc, err := h.storeAndEnqueue(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnsupportedFileType) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

var errUnsupportedFileType = errors.New("file type not supported")

// storeAndEnqueue validates one uploaded file, persists it, and schedules
// ingestion. Shared by the single and batch upload endpoints.
func (h *DocumentHandler) storeAndEnqueue(ctx context.Context, userID, filename, contentType string, file io.Reader) (*models.Document, error) {
	// Sanitize filename to prevent path traversal or invalid characters
	cleanFilename := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(cleanFilename))
	if !allowedExtensions[ext] {
		return nil, errUnsupportedFileType
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.docs.UploadAndCreate(ctx, userID, cleanFilename, contentType, file, "upload")
	if err != nil {
		return nil, errors.New("failed to store document")
	}

	h.ingestor.Enqueue(doc.ID)
	return doc, nil
}

// BatchUploadResult reports one file's outcome from a batch upload.
type BatchUploadResult struct {
	FileName string           `json:"file_name"`
	Document *models.Document `json:"document,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// UploadDocumentsBatch accepts several files in one multipart request under
// the "files" field. Each file succeeds or fails on its own; one bad file
// never blocks the rest.
func (h *DocumentHandler) UploadDocumentsBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}

	results := make([]BatchUploadResult, 0, len(r.MultipartForm.File["files"]))
	for _, header := range r.MultipartForm.File["files"] {
		res := BatchUploadResult{FileName: filepath.Base(header.Filename)}

		file, err := header.Open()
		if err != nil {
			res.Error = "invalid file"
			results = append(results, res)
			continue
		}

		doc, err := h.storeAndEnqueue(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), file)
		file.Close()
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Document = doc
		}
		results = append(results, res)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(results)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.dbclient.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetDocumentStatus serves the ingestion state machine for polling. The
// in-memory tracker answers first; after a restart the mirrored columns on
// the document row take over.
func (h *DocumentHandler) GetDocumentStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	st, tracked := h.tracker.Get(doc.ID)
	if !tracked {
		st = ingestion_engine.IngestionStatus{
			Stage:        ingestion_engine.IngestionStage(doc.Stage),
			Progress:     doc.Progress,
			ErrorMessage: doc.ErrorMessage,
			UpdatedAt:    doc.UpdatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// GetDocumentChunks returns the indexed chunks of one document in position
// order, embeddings excluded.
func (h *DocumentHandler) GetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	chunks, err := h.dbclient.GetChunksByDocument(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chunks)
}

// DownloadDocument streams the original uploaded bytes back to the owner.
func (h *DocumentHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	rc, err := h.docs.Open(r.Context(), doc)
	if err != nil {
		http.Error(w, "failed to open document", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	_, _ = io.Copy(w, rc)
}

// ownedDocument loads the {documentID} route param and enforces ownership.
// A foreign document reads as not found, never as forbidden.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return nil, false
	}
	docID := chi.URLParam(r, "documentID")

	doc, err := h.dbclient.GetDocumentByID(r.Context(), docID)
	if err != nil || doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}
