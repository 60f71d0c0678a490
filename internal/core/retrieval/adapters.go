package retrieval

import (
	"context"
	"fmt"

	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/models"
)

// PgLexicalIndex is a thin adapter over the database client's full-text
// ranking. Tenant filtering happens inside the SQL (WHERE user_id = $1).
type PgLexicalIndex struct {
	db core.DbClient
}

var _ LexicalIndex = (*PgLexicalIndex)(nil)

func NewPgLexicalIndex(db core.DbClient) *PgLexicalIndex {
	return &PgLexicalIndex{db: db}
}

func (a *PgLexicalIndex) Query(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error) {
	return a.db.SearchChunksLexical(ctx, userID, query, topN)
}

// PgSemanticIndex embeds the query text, then runs a pgvector
// nearest-neighbor scan filtered to the caller's user_id.
type PgSemanticIndex struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
}

var _ SemanticIndex = (*PgSemanticIndex)(nil)

func NewPgSemanticIndex(db core.DbClient, embedder core.EmbeddingProvider) *PgSemanticIndex {
	return &PgSemanticIndex{db: db, embedder: embedder}
}

func (a *PgSemanticIndex) Query(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error) {
	vecs, err := a.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return a.db.SearchChunksSemantic(ctx, userID, vecs[0], topN)
}
