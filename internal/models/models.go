package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents a user-uploaded document. Stage mirrors the in-memory
// status tracker so progress survives a restart; ErrorMessage is only set
// when Stage is "error".
type Document struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	StorageURL   string    `db:"storage_url" json:"storage_url"`
	SourceType   string    `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType  string    `db:"content_type" json:"content_type"`
	Stage        string    `db:"stage" json:"stage"`
	Progress     int       `db:"progress" json:"progress"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document. UserID is copied
// from the owning document at write time and must always equal the document
// owner's id, so index queries can filter per tenant.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	Page       int       `db:"page" json:"page,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MatchSource records which index (or both) produced a retrieval hit.
type MatchSource string

const (
	MatchLexical  MatchSource = "lexical"
	MatchSemantic MatchSource = "semantic"
	MatchBoth     MatchSource = "both"
)

// ScoredChunk is a raw index hit before fusion. Score is in whatever space
// the producing index uses (ts_rank, cosine similarity, ...).
type ScoredChunk struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}

// RetrievedChunk is a fused, ranked retrieval result. Transient, produced per
// query, never persisted.
type RetrievedChunk struct {
	Chunk  DocumentChunk `json:"chunk"`
	Score  float64       `json:"score"`
	Source MatchSource   `json:"source"`
}

// ChatSession represents one conversation session for a user.
type ChatSession struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage represents an individual chat message (user or assistant).
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Role      string    `db:"role" json:"role"` // "user" or "assistant"
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
