package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docuquery_test")

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 768, cfg.ChunkSize)
	assert.Equal(t, 96, cfg.ChunkOverlap)
	// Overlap stays in the 10-20% band of the chunk size.
	ratio := float64(cfg.ChunkOverlap) / float64(cfg.ChunkSize)
	assert.GreaterOrEqual(t, ratio, 0.10)
	assert.LessOrEqual(t, ratio, 0.20)

	assert.Equal(t, 32, cfg.MinExtractChars)
	assert.Equal(t, 0.5, cfg.LexicalWeight)
	assert.Equal(t, 0.5, cfg.SemanticWeight)
	assert.Equal(t, 5, cfg.HistoryTurns)
}

func TestLoadConfig_OverlapGuard(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docuquery_test")
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	cfg := LoadConfig()
	assert.Equal(t, 25, cfg.ChunkOverlap)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docuquery_test")
	t.Setenv("LEXICAL_WEIGHT", "0.7")
	t.Setenv("SEMANTIC_WEIGHT", "0.3")
	t.Setenv("CHUNK_OVERLAP", "128")

	cfg := LoadConfig()
	assert.Equal(t, 0.7, cfg.LexicalWeight)
	assert.Equal(t, 0.3, cfg.SemanticWeight)
	assert.Equal(t, 128, cfg.ChunkOverlap)
}
