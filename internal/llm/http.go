package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// maxResponseBytes caps how much of a provider reply is read into memory.
const maxResponseBytes = 8 << 20

// JSONRequest is a provider-agnostic POST with a JSON body.
type JSONRequest struct {
	URL     string
	Body    any
	Headers map[string]string // override Content-Type if needed
}

// StatusError is returned by PostJSON for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	const limit = 512
	body := e.Body
	if len(body) > limit {
		body = body[:limit]
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, bytes.TrimSpace(body))
}

// PostJSON sends req and returns the raw reply with its status code.
// A nil client uses http.DefaultClient, which imposes no timeout; the only
// deadline is the one carried by ctx.
func PostJSON(ctx context.Context, client *http.Client, req JSONRequest, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.NewString()
	}
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	payload, err := json.Marshal(req.Body)
	if err != nil {
		logger.Error("llm.http.encode_failed", "req_id", rid, "error", err)
		return nil, 0, fmt.Errorf("encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	logger.Debug("llm.http.send", "req_id", rid, "url", req.URL, "body_bytes", len(payload))

	resp, err := client.Do(httpReq)
	if err != nil {
		logger.Error("llm.http.transport_failed", "req_id", rid, "error", err, "elapsed_ms", elapsed())
		return nil, 0, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("llm.http.close_failed", "req_id", rid, "error", cerr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logger.Error("llm.http.read_failed", "req_id", rid, "status", resp.StatusCode, "error", err, "elapsed_ms", elapsed())
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	logger.Info("llm.http.done", "req_id", rid, "status", resp.StatusCode, "bytes", len(raw), "elapsed_ms", elapsed())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: raw}
	}
	return raw, resp.StatusCode, nil
}
