// Package ocr implements the uniform PDF->Markdown OCR contract (C2):
// a single concrete Mistral Document AI provider plus a URL/bytes
// fallback decorator, grounded on the teacher's OpenAI Vision raw-HTTP
// client shape (internal/ocr/ai.go) but pointed at a markdown-producing
// document OCR endpoint instead of an image-captioning one.
package ocr

import "context"

// Result is the uniform OCR output, spec §4.2.
type Result struct {
	Markdown   string
	Pages      *int
	DurationMs int64
	Provider   string
}

// Provider extracts markdown from a PDF reference, which is either a
// URL string or a data:application/pdf;base64,... reference.
type Provider interface {
	Extract(ctx context.Context, pdfRef string) (*Result, error)
}
