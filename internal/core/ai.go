package core

import "context"

// LLMProvider is a single-shot text completion backend.
// Model name and temperature are fixed when the provider is built.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
