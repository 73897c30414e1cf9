package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract picks a strategy based on the declared content type. Parameters such
// as "; charset=utf-8" are ignored.
func (e *Extractor) Extract(ctx context.Context, content []byte, contentType string) (TextExtractionResult, error) {
	start := time.Now()
	format := constants.MapContentTypeToFormat(contentType)
	e.logger.Debug("extract.start",
		"req_id", common.RequestIDFromContext(ctx),
		"content_type", contentType,
		"format", format,
		"bytes", len(content),
	)

	var (
		res TextExtractionResult
		err error
	)
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(content)
	case constants.XML:
		res, err = e.extractXML(content)
	default:
		e.logger.Warn("extract.unsupported_type", "req_id", common.RequestIDFromContext(ctx), "content_type", contentType)
		return TextExtractionResult{}, common.NewBadRequest(common.ReasonUnsupportedMediaType,
			fmt.Sprintf("Unsupported file type: %s. Supported types: PDF, XML", contentType), nil)
	}
	res.Format = format
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("extract.failed",
			"req_id", common.RequestIDFromContext(ctx),
			"format", format,
			"error", err,
			"elapsed_ms", res.Duration.Milliseconds(),
		)
		return TextExtractionResult{Format: format}, err
	}

	e.logger.Info("extract.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"format", format,
		"method", res.Method,
		"pages", res.Pages,
		"elements", res.Elements,
		"text_len", len(res.Text),
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
