// Package engine defines the pluggable OCR backend boundary: given raw
// bytes and a MIME type, an Engine returns extracted markdown, a page count,
// and engine metadata, or fails with an ExtractionError.
package engine

import (
	"context"
	"fmt"
)

// Result is the output of one extraction call. Ephemeral; lives only within
// a single pipeline run.
type Result struct {
	Markdown  string
	PageCount int
	Metadata  map[string]string
}

// Engine converts image or document bytes into markdown.
// Implementations are stateless per call and shared across concurrent jobs.
type Engine interface {
	ProcessImage(ctx context.Context, data []byte, mimeType string) (Result, error)
	ProcessDocument(ctx context.Context, data []byte, mimeType string) (Result, error)
	Close(ctx context.Context) error
}

// ExtractionError is a domain-specific extraction failure (model not ready,
// unsupported format, inference error). The pipeline distinguishes it from
// transport and unexpected failures when classifying a failed result.
type ExtractionError struct {
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError wraps err as an extraction failure.
func NewExtractionError(message string, err error) *ExtractionError {
	return &ExtractionError{Message: message, Err: err}
}
