package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"pdf-rag/internal/config"
)

var ErrEmptyAnswer = errors.New("model returned an empty answer")

// Request is a single-prompt completion. Model and Temperature come from the
// session settings, so one Generator serves every model of a provider.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// NewGenerator creates the generator selected by cfg.Provider.
func NewGenerator(cfg *config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicGenerator(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, OpenRouter, vLLM...).
type OpenAIGenerator struct {
	llm       llms.Model
	maxTokens int
}

func NewOpenAIGenerator(cfg *config.LLMConfig) (*OpenAIGenerator, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return &OpenAIGenerator{llm: llm, maxTokens: cfg.MaxTokens}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt),
	}
	res, err := GenerateContent(ctx, g.llm, msgContent,
		llms.WithModel(req.Model),
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(firstPositive(req.MaxTokens, g.maxTokens)),
	)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
		return "", ErrEmptyAnswer
	}
	return res.Choices[0].Content, nil
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	log.Debug().Int("messages", len(messages)).Msg("Generating content")
	res, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	return res, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
