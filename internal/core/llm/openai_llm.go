package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/markdave123-py/docchat/internal/core"
)

// OpenAILLM talks to any OpenAI-compatible chat endpoint through langchaingo.
type OpenAILLM struct {
	model       *openai.LLM
	modelName   string
	temperature float64
}

func NewOpenAILLM(baseURL, apiKey, modelName string, temperature float64) (*OpenAILLM, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithModel(modelName),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	return &OpenAILLM{model: m, modelName: modelName, temperature: temperature}, nil
}

func (o *OpenAILLM) Close() error { return nil }

func (o *OpenAILLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	log.Debug().Str("model", o.modelName).Int("prompt_len", len(userPrompt)).Msg("generating content")
	resp, err := o.model.GenerateContent(ctx, messages, llms.WithTemperature(o.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: openai generate: %v", core.ErrModel, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%w: openai returned no text", core.ErrModel)
	}
	return resp.Choices[0].Content, nil
}

var _ core.LLMProvider = (*OpenAILLM)(nil)
