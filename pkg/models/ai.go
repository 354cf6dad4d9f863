// Package models contains shared data models used across the ThreadLens codebase.
package models

import "context"

// AIProvider is the interface every LLM integration implements.
// Callers depend on this interface, never on a concrete provider.
type AIProvider interface {
	// Complete sends one prompt and returns the model's raw text reply.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "anthropic", "vertex").
	Name() string
	// Model returns the model name recorded alongside every verdict.
	Model() string
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}
