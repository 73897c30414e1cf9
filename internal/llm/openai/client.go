package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// ErrMissingAPIKey is returned from Complete when no API key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not configured")

// Complete implements llm.Completer using chat/completions. When req.Schema is
// set the request carries a json_schema response format; otherwise the reply
// is free text.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	c.log.Info("llm.complete.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.User),
		"structured", req.Schema != nil,
	)

	if c.cfg.APIKey == "" {
		c.log.Error("llm.complete.missing_api_key", "req_id", rid)
		return llm.Completion{}, common.NewUpstreamFailure("LLM call failed", ErrMissingAPIKey)
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = llm.InvoiceSchemaName
		}
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"schema": req.Schema,
				"strict": false,
			},
		}
	}

	raw, status, httpErr := llm.PostJSON(common.WithRequestID(ctx, rid), c.httpClient, llm.JSONRequest{
		URL:     strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions",
		Body:    body,
		Headers: map[string]string{"Authorization": "Bearer " + c.cfg.APIKey},
	}, c.log)
	if httpErr != nil {
		c.log.Error("llm.complete.http_error",
			"req_id", rid, "status", status, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, common.NewUpstreamFailure("LLM call failed", httpErr)
	}

	var cc struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.complete.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, common.NewUpstreamFailure("LLM call failed", fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.complete.no_choices",
			"req_id", rid, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, common.NewUpstreamFailure("LLM call failed", errors.New("no choices in openai response"))
	}

	msg := cc.Choices[0].Message
	if msg.Content == "" && msg.Refusal != "" {
		c.log.Warn("llm.complete.refusal", "req_id", rid, "refusal", msg.Refusal)
	}
	model := cc.Model
	if model == "" {
		model = c.cfg.Model
	}

	c.log.Info("llm.complete.ok",
		"req_id", rid,
		"model", model,
		"content_len", len(msg.Content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Completion{Content: strings.TrimSpace(msg.Content), Model: model, Raw: raw}, nil
}
