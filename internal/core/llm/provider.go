// Package llm holds the text generation backends.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

const DefaultModel = "gemini-2.0-flash"

// Provider is an LLMProvider that owns a client needing cleanup.
type Provider interface {
	core.LLMProvider
	Close() error
}

// New builds the backend named by cfg.LLMProvider.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "gemini":
		return NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel, cfg.GenTemperature)
	case "openai":
		return NewOpenAILLM(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.GenModel, cfg.GenTemperature)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
