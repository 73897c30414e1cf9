package llm

import "context"

// CompletionRequest is a two-turn prompt: fixed instructions plus the document text.
type CompletionRequest struct {
	System string
	User   string

	// Schema, when set, asks the provider for structured output conforming to it.
	Schema     map[string]any
	SchemaName string
}

type Completion struct {
	Content string
	Model   string
	Raw     []byte // provider response body
}

// Completer is the interface the extraction pipeline depends on. One call, no retries.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
