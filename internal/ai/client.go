package ai

import "context"

// Request is one prompt for the inference service.
type Request struct {
	// System is an optional system instruction.
	System string
	// Prompt is the user-facing instruction body.
	Prompt string
	// Temperature in [0,2]; zero means the provider default.
	Temperature float64
	// MaxTokens caps the completion budget; zero means no explicit cap.
	MaxTokens int
	// WebSearch requests the research model with web-search grounding.
	WebSearch bool
}

// Client is the inference service consumed by generation handlers: one
// prompt in, raw text out. The text may be well-formed JSON, JSON wrapped
// in prose or fencing, or truncated garbage; callers own the extraction.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}
