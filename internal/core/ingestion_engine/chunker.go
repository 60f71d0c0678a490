package ingestion_engine

import (
	"strings"

	"github.com/docuquery/docuquery/internal/core"
)

// Chunk is one bounded passage of source text, the unit indexed and
// retrieved. Pos is the stable zero-based position inside the document.
type Chunk struct {
	Pos  int
	Text string
}

// Chunker splits extracted text into overlapping rune-window chunks.
// The window advances by size-overlap runes, so each chunk's trailing
// overlap region is textually identical to the next chunk's prefix and the
// windows cover the source with no gaps. Splitting identical text with an
// identical configuration always yields an identical sequence.
type Chunker struct {
	size    int // runes per chunk
	overlap int // runes shared with the previous chunk
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 768
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks the text. Whitespace-only windows are dropped (their Pos is
// still consumed so surviving chunks keep their document order). Returns
// *core.ChunkingError when nothing usable remains.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, &core.ChunkingError{}
	}

	step := c.size - c.overlap
	chunks := make([]Chunk, 0, len(runes)/step+1)

	pos := 0
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, Chunk{Pos: pos, Text: window})
		}
		pos++

		if end == len(runes) {
			break
		}
	}

	if len(chunks) == 0 {
		return nil, &core.ChunkingError{}
	}
	return chunks, nil
}
