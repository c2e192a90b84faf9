// Package llm provides the language-understanding client used by the
// classifier's remote path and the engine's production step executor.
package llm

import (
	"context"
)

// Request is a single completion request.
type Request struct {
	// System is the instruction prompt.
	System string

	// Prompt is the user-side content.
	Prompt string

	// MaxTokens caps the completion length (0 uses the client default).
	MaxTokens int
}

// Usage carries token accounting returned by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the provider's completion.
type Response struct {
	// Text is the first text block of the completion.
	Text string

	// Usage is best-effort token accounting.
	Usage Usage
}

// Client completes prompts against a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
