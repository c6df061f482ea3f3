// Package llm defines a minimal completion interface over large language
// models. Lektor uses an LLM for exactly one job — proposing a title and
// subject for a finished lecture — so the contract is a single blocking
// completion call, not a streaming conversation API.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// Prompt is the user message content.
	Prompt string

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float64
}

// CompletionResponse is the model's answer.
type CompletionResponse struct {
	// Content is the full completion text.
	Content string
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete performs a single blocking completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
