// Package ocr defines the text-extraction boundary for uploaded
// prescription images. Extraction quality is a collaborator concern;
// the API only consumes text plus a confidence signal.
package ocr

import (
	"context"
	"strings"
)

// Result is the outcome of text extraction.
type Result struct {
	Text       string
	Confidence float64
}

// Extractor pulls text from an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*Result, error)
}

// PlainTextExtractor treats the upload bytes as UTF-8 text. It covers
// text uploads and tests; image OCR plugs in behind the same
// interface.
type PlainTextExtractor struct{}

// Extract returns the bytes as trimmed text with full confidence.
func (PlainTextExtractor) Extract(_ context.Context, data []byte, _ string) (*Result, error) {
	return &Result{
		Text:       strings.TrimSpace(string(data)),
		Confidence: 1.0,
	}, nil
}
