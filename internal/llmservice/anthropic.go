package llmservice

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
)

type AnthropicGenerator struct {
	client    *anthropic.Client
	maxTokens int
}

func NewAnthropicGenerator(cfg *config.LLMConfig) *AnthropicGenerator {
	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.Key)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicGenerator{client: &client, maxTokens: cfg.MaxTokens}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	log.Debug().Str("model", req.Model).Float64("temperature", req.Temperature).Msg("Generating content")

	rsp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(firstPositive(req.MaxTokens, g.maxTokens, 1024)),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyAnswer
	}
	return b.String(), nil
}
