package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, source_type, content_type, stage, progress, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.SourceType, doc.ContentType, doc.Stage, doc.Progress)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, source_type, content_type,
		       stage, progress, COALESCE(error_message, ''), created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType,
		&d.Stage, &d.Progress, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, source_type, content_type,
		       stage, progress, COALESCE(error_message, ''), created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType,
			&d.Stage, &d.Progress, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStage(ctx context.Context, id string, stage string, progress int, errorMessage string) error {
	const q = `
		UPDATE documents
		SET stage = $2, progress = $3, error_message = NULLIF($4, ''), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, stage, progress, errorMessage)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Chunks

// InsertDocumentChunks inserts all chunks in a single transaction so a
// failed ingestion never leaves a partial chunk set visible to queries.
// Every chunk's user_id must match its document owner; a mismatch aborts
// the whole write.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	var owner string
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM documents WHERE id = $1`, chunks[0].DocumentID,
	).Scan(&owner); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("chunk owner lookup: %w", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, user_id, position, text, embedding, page, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.UserID != owner || ch.DocumentID != chunks[0].DocumentID {
			_ = tx.Rollback()
			return fmt.Errorf("chunk %s violates tenant ownership (user %s, owner %s)", ch.ID, ch.UserID, owner)
		}
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.Position, ch.Text, vec, ch.Page,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, user_id, position, text, page, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.UserID, &ch.Position, &ch.Text, &ch.Page, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunksLexical ranks the user's chunks by ts_rank_cd against a
// websearch-style query. The user_id filter is part of the SQL, never
// applied client-side.
func (c *DatabaseClient) SearchChunksLexical(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT id, document_id, user_id, position, text, page,
		       ts_rank_cd(search_tsv, websearch_to_tsquery('english', $2)) AS score
		FROM document_chunks
		WHERE user_id = $1
		  AND search_tsv @@ websearch_to_tsquery('english', $2)
		ORDER BY score DESC, document_id, position
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, userID, query, topN)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.UserID,
			&sc.Chunk.Position, &sc.Chunk.Text, &sc.Chunk.Page, &sc.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SearchChunksSemantic runs a cosine nearest-neighbor scan over the user's
// chunks for the query embedding.
func (c *DatabaseClient) SearchChunksSemantic(ctx context.Context, userID string, queryVec []float32, topN int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT id, document_id, user_id, position, text, page,
		       1 - (embedding <=> $2) AS score
		FROM document_chunks
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, userID, vec, topN)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.UserID,
			&sc.Chunk.Position, &sc.Chunk.Text, &sc.Chunk.Page, &sc.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Chat sessions

func (c *DatabaseClient) CreateChatSession(ctx context.Context, session *models.ChatSession) error {
	if session == nil {
		return errors.New("nil session")
	}
	const q = `
		INSERT INTO chat_sessions (id, user_id, name, created_at)
		VALUES ($1, $2, $3, now())
	`
	_, err := c.db.ExecContext(ctx, q, session.ID, session.UserID, session.Name)
	return err
}

func (c *DatabaseClient) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	const q = `
		SELECT id, user_id, COALESCE(name, ''), created_at
		FROM chat_sessions WHERE id = $1
	`
	var s models.ChatSession
	err := c.db.QueryRowContext(ctx, q, sessionID).Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) ListChatSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	const q = `
		SELECT id, user_id, COALESCE(name, ''), created_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatSession
	for rows.Next() {
		var s models.ChatSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) RenameChatSession(ctx context.Context, sessionID, name string) error {
	const q = `UPDATE chat_sessions SET name = $2 WHERE id = $1`
	_, err := c.db.ExecContext(ctx, q, sessionID, name)
	return err
}

func (c *DatabaseClient) AddChatMessage(ctx context.Context, message *models.ChatMessage) error {
	if message == nil {
		return errors.New("nil message")
	}
	const q = `
		INSERT INTO chat_messages (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err := c.db.ExecContext(ctx, q, message.ID, message.SessionID, message.Role, message.Content)
	return err
}

// GetMessagesBySession returns the most recent messages in chronological
// order (oldest first), capped at limit.
func (c *DatabaseClient) GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, session_id, role, content, created_at
		FROM (
			SELECT id, session_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
