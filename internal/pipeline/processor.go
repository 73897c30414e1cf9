package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// Upload is one file received by the process endpoint.
type Upload struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Result is what Process hands back to the handler.
type Result struct {
	Record  entity.InvoiceRecord
	Outcome Outcome
	Method  string
	Pages   int
}

// Processor coordinates text extraction then LLM field extraction.
type Processor struct {
	logger    *slog.Logger
	extractor extract.TextExtractor
	pipeline  *InvoicePipeline
	jobsRepo  repository.ExtractJobRepository // nil = ledger disabled
}

func NewProcessor(
	logger *slog.Logger,
	extractor extract.TextExtractor,
	pipeline *InvoicePipeline,
	jobsRepo repository.ExtractJobRepository,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:    logger,
		extractor: extractor,
		pipeline:  pipeline,
		jobsRepo:  jobsRepo,
	}
}

// Process runs both stages for an upload and sets file_name on the record.
// Content-type validation happens inside the extractor, before any parsing.
func (p *Processor) Process(ctx context.Context, up Upload) (Result, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	jobID := p.startJob(ctx, up)

	text, err := p.extractor.Extract(ctx, up.Content, up.ContentType)
	if err != nil {
		p.logger.Warn("processor.extract.failed", "req_id", rid, "file_name", up.FileName, "error", err)
		p.finishJob(ctx, jobID, "", "", err)
		return Result{}, err
	}
	p.logger.Debug("processor.extract.ok",
		"req_id", rid,
		"format", text.Format,
		"method", text.Method,
		"pages", text.Pages,
		"text_len", len(text.Text),
	)

	ex, err := p.pipeline.Extract(ctx, text.Text)
	if err != nil {
		p.finishJob(ctx, jobID, text.Method, "", err)
		return Result{}, err
	}

	rec := ex.Record
	rec.FileName = up.FileName
	p.finishJob(ctx, jobID, text.Method, ex.Outcome, nil)

	p.logger.Info("processor.ok",
		"req_id", rid,
		"file_name", up.FileName,
		"format", text.Format,
		"outcome", ex.Outcome,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Record: rec, Outcome: ex.Outcome, Method: text.Method, Pages: text.Pages}, nil
}

// Ledger writes are best effort: failures are logged and never reach the caller.
func (p *Processor) startJob(ctx context.Context, up Upload) uuid.UUID {
	if p.jobsRepo == nil {
		return uuid.Nil
	}
	job, err := p.jobsRepo.Start(ctx, repository.JobStart{
		RequestID:   common.RequestIDFromContext(ctx),
		Subject:     common.SubjectFromContext(ctx),
		FileName:    up.FileName,
		ContentType: constants.NormalizeContentType(up.ContentType),
	})
	if err != nil {
		p.logger.Warn("processor.ledger.start_failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
		return uuid.Nil
	}
	return job.ID
}

func (p *Processor) finishJob(ctx context.Context, jobID uuid.UUID, method string, outcome Outcome, cause error) {
	if p.jobsRepo == nil || jobID == uuid.Nil {
		return
	}
	// the request context may already be cancelled; the row should still close
	ctx = context.WithoutCancel(ctx)
	var err error
	if cause != nil {
		err = p.jobsRepo.FinishFailure(ctx, jobID, method, cause.Error())
	} else {
		err = p.jobsRepo.FinishSuccess(ctx, jobID, method, string(outcome))
	}
	if err != nil {
		p.logger.Warn("processor.ledger.finish_failed", "req_id", common.RequestIDFromContext(ctx), "job_id", jobID, "error", err)
	}
}
