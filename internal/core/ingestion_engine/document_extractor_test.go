package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docuquery/internal/core"
)

func TestExtractText_TextualMimesPassThrough(t *testing.T) {
	e := NewDocconvExtractor(32)
	ctx := context.Background()

	for _, mime := range []string{"text/plain", "text/markdown", "text/csv", "application/json"} {
		text, err := e.ExtractText(ctx, []byte("hello world"), mime)
		require.NoError(t, err, mime)
		assert.Equal(t, "hello world", text)
	}
}

func TestExtractText_ShortTextFileIsNotRejected(t *testing.T) {
	// A small but readable text file must extract even though its content
	// sits below the binary-conversion threshold.
	e := NewDocconvExtractor(32)

	text, err := e.ExtractText(context.Background(), []byte("Alpha Beta\nGamma Delta"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Beta\nGamma Delta", text)

	text, err = e.ExtractText(context.Background(), []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
}

func TestExtractText_MimeParametersAreStripped(t *testing.T) {
	e := NewDocconvExtractor(32)

	text, err := e.ExtractText(context.Background(), []byte("hello world"), "TEXT/PLAIN; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractText_WhitespaceOnlyFails(t *testing.T) {
	e := NewDocconvExtractor(32)

	_, err := e.ExtractText(context.Background(), []byte(" \n\t  "), "text/plain")
	require.Error(t, err)

	var extErr *core.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "text/plain", extErr.ContentType)
}

func TestExtractText_CancelledContext(t *testing.T) {
	e := NewDocconvExtractor(32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ExtractText(ctx, []byte("hello world"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNonWhitespaceCount(t *testing.T) {
	assert.Equal(t, 0, nonWhitespaceCount("  \n\t"))
	assert.Equal(t, 3, nonWhitespaceCount("a b c"))
	assert.Equal(t, 18, nonWhitespaceCount("Alpha Beta\nGamma Delta"))
}

func TestNormalizeMime(t *testing.T) {
	assert.Equal(t, "text/plain", normalizeMime("text/plain; charset=utf-8"))
	assert.Equal(t, "application/pdf", normalizeMime(" Application/PDF "))
	assert.Equal(t, "application/octet-stream", normalizeMime(""))
}
