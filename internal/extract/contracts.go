package extract

import (
	"context"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// TextExtractor is Stage 1: uploaded bytes + declared content type -> text.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte, contentType string) (TextExtractionResult, error)
}

type TextExtractionResult struct {
	Text     string
	Format   constants.Format
	Pages    int    // PDF only
	Elements int    // XML only: lines emitted
	Method   string // "pdf-text" | "xml-allowlist" | "xml-all" | "xml-raw"
	Duration time.Duration
	Warnings []string
}

// Extraction methods reported in TextExtractionResult.Method.
const (
	MethodPDFText      = "pdf-text"
	MethodXMLAllowList = "xml-allowlist"
	MethodXMLAll       = "xml-all"
	MethodXMLRaw       = "xml-raw"
)
