package core

import (
	"context"
)

// DocumentExtractor turns raw file bytes into plain text. The contentType
// hint (MIME type or filename extension) selects the parsing strategy.
// Implementations return *ExtractionError when no usable text exists after
// all fallbacks.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
