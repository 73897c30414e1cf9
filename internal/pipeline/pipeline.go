package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// Config holds behavior flags for the extraction stage.
type Config struct {
	// StructuredOutput asks the provider for a json_schema response format.
	StructuredOutput bool
}

// Extraction is the result of one pipeline run.
type Extraction struct {
	Record    entity.InvoiceRecord
	Outcome   Outcome
	Raw       string   // completion content as returned by the model
	Defaulted []string // fields that fell back to their default (partial only)
	Truncated bool
}

// InvoicePipeline is Stage 2: text -> prompt -> one completion -> InvoiceRecord.
type InvoicePipeline struct {
	Logger    *slog.Logger
	Cfg       Config
	Completer llm.Completer
	schema    map[string]any
	validator *llm.SchemaValidator
}

func NewInvoicePipeline(logger *slog.Logger, cfg Config, completer llm.Completer) (*InvoicePipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema := llm.BuildInvoiceJSONSchema()
	v, err := llm.NewSchemaValidator(schema)
	if err != nil {
		return nil, fmt.Errorf("invoice schema: %w", err)
	}
	return &InvoicePipeline{Logger: logger, Cfg: cfg, Completer: completer, schema: schema, validator: v}, nil
}

// Extract never fails on an unintelligible reply; only a failed model call is an
// error (UPSTREAM_FAILURE). file_name is left empty for the caller to set.
func (p *InvoicePipeline) Extract(ctx context.Context, text string) (Extraction, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	user, truncated := llm.Truncate(text)
	if truncated {
		p.Logger.Warn("pipeline.prompt.truncated",
			"req_id", rid,
			"text_len", len([]rune(text)),
			"max_chars", llm.MaxPromptChars,
		)
	}

	req := llm.CompletionRequest{System: llm.BuildSystemPrompt(), User: user}
	if p.Cfg.StructuredOutput {
		req.Schema = p.schema
		req.SchemaName = llm.InvoiceSchemaName
	}

	p.Logger.Info("pipeline.llm.start", "req_id", rid, "prompt_len", len(user), "structured", p.Cfg.StructuredOutput)
	completion, err := p.Completer.Complete(ctx, req)
	if err != nil {
		p.Logger.Error("pipeline.llm.failed",
			"req_id", rid,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if common.CodeOf(err) == "" {
			err = common.NewUpstreamFailure("LLM call failed", err)
		}
		return Extraction{}, err
	}

	out := Extraction{Raw: completion.Content, Truncated: truncated}
	rec, obj, defaulted, perr := ParseCompletion(completion.Content)
	out.Record = rec
	switch {
	case perr != nil:
		out.Outcome = OutcomeDefaulted
		p.Logger.Warn("pipeline.fields.defaulted",
			"req_id", rid,
			"reason", perr.Error(),
			"content_len", len(completion.Content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	default:
		schemaErr := p.validator.Validate(obj)
		if len(defaulted) == 0 && schemaErr == nil {
			out.Outcome = OutcomeParsed
			p.Logger.Info("pipeline.fields.parsed",
				"req_id", rid,
				"invoice_type", rec.InvoiceType,
				"items", len(rec.ExtractedItems),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			break
		}
		out.Outcome = OutcomePartial
		out.Defaulted = defaulted
		attrs := []any{
			"req_id", rid,
			"defaulted", defaulted,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if schemaErr != nil {
			attrs = append(attrs, "schema_error", schemaErr.Error())
		}
		p.Logger.Warn("pipeline.fields.partial", attrs...)
	}
	return out, nil
}
