package rag

import (
	"sync"

	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
)

// Providers hands out the hosted-model clients. Either method fails with a
// *config.MissingKeysError when the credential it depends on is not set.
type Providers interface {
	Embedder() (embeddings.Embedder, error)
	Generator() (llmservice.Generator, error)
}

// ConfigProviders builds the clients from configuration on first use.
type ConfigProviders struct {
	cfg *config.Config

	mu        sync.Mutex
	embedder  embeddings.Embedder
	generator llmservice.Generator
}

func NewConfigProviders(cfg *config.Config) *ConfigProviders {
	return &ConfigProviders{cfg: cfg}
}

func (p *ConfigProviders) Embedder() (embeddings.Embedder, error) {
	if err := p.cfg.RequireEmbedKey(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.embedder == nil {
		e, err := embedding.NewEmbedder(&p.cfg.EmbedLLM)
		if err != nil {
			return nil, err
		}
		p.embedder = e
	}
	return p.embedder, nil
}

func (p *ConfigProviders) Generator() (llmservice.Generator, error) {
	if err := p.cfg.RequireAll(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generator == nil {
		g, err := llmservice.NewGenerator(&p.cfg.InferenceLLM)
		if err != nil {
			return nil, err
		}
		p.generator = g
	}
	return p.generator, nil
}
