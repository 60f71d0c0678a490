package ingestion_engine

import (
	"bytes"
	"context"
	"log"
	"strings"
	"unicode"

	"code.sajari.com/docconv"

	"github.com/docuquery/docuquery/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Textual formats pass through untouched; page-oriented binaries are
// converted by docconv, whose pdf converter OCRs rendered page images and
// whose image converter runs tesseract directly (docconv `ocr` build tag).
type DocconvExtractor struct {
	// minChars is the minimum number of non-whitespace runes a binary
	// conversion must produce to count as extracted text. Below it the
	// output is treated as conversion noise, not content. Textual formats
	// are exempt: a two-line .txt file is still a document.
	minChars int
}

func NewDocconvExtractor(minChars int) *DocconvExtractor {
	if minChars <= 0 {
		minChars = 32
	}
	return &DocconvExtractor{minChars: minChars}
}

// ExtractText converts file bytes to plain text based on content type.
// Returns *core.ExtractionError when nothing usable remains.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mime := normalizeMime(contentType)

	// Structured text needs no conversion and no threshold; only an
	// empty or whitespace-only file fails.
	if isTextualMime(mime) {
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return "", &core.ExtractionError{ContentType: mime}
		}
		return text, nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), mime, false)
	if err != nil {
		log.Printf("docconv: conversion failed for %q: %v", mime, err)
	}

	var text string
	if res != nil {
		text = res.Body
	}
	if nonWhitespaceCount(text) >= e.minChars {
		return text, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", &core.ExtractionError{ContentType: mime, Err: err}
}

func nonWhitespaceCount(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// normalizeMime strips parameters ("text/plain; charset=utf-8" -> "text/plain")
// and lowercases the type.
func normalizeMime(contentType string) string {
	mime := contentType
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime
}

func isTextualMime(mime string) bool {
	switch mime {
	case "text/plain", "text/markdown", "text/csv", "application/json":
		return true
	}
	return false
}
