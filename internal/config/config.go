package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTemperature  = 0.2
	DefaultTopK         = 4

	MinChunkSize    = 100
	MaxChunkSize    = 2000
	MaxChunkOverlap = 500
	MaxTopK         = 20

	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	IndexMemory   = "memory"
	IndexPostgres = "postgres"

	SplitterCharacter = "character"
	SplitterRecursive = "recursive"
)

var ErrInvalidSettings = errors.New("invalid settings")

type Config struct {
	Server       ServerConfig   `yaml:"server"`
	Log          LogConfig      `yaml:"log"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Database     DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// LLMConfig describes a hosted model endpoint. Key is never read from the
// YAML file; it is resolved from the environment variable named by KeyEnv.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Models      []string `yaml:"models,omitempty"`
	KeyEnv      string   `yaml:"api_key_env"`
	Key         string   `yaml:"-"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	BatchSize   int      `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Splitter     string `yaml:"splitter"`
	TopK         int    `yaml:"top_k"`
	Index        string `yaml:"index"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"-"`
	Debug    bool   `yaml:"debug"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	cfg.ResolveKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration. Numeric parameters that may
// legitimately be zero (temperature, overlap) are only defaulted here, so an
// explicit zero in the YAML file survives applyDefaults.
func Default() *Config {
	cfg := &Config{
		InferenceLLM: LLMConfig{Temperature: DefaultTemperature},
		RAG: RAGConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			TopK:         DefaultTopK,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = 200
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "logs"
	}
	if cfg.Log.ConsoleLevel == "" {
		cfg.Log.ConsoleLevel = "info"
	}
	if cfg.Log.FileLevel == "" {
		cfg.Log.FileLevel = "debug"
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOpenAI
	}
	if cfg.EmbedLLM.Provider == ProviderOpenAI {
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = "text-embedding-3-small"
		}
		if cfg.EmbedLLM.KeyEnv == "" {
			cfg.EmbedLLM.KeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.EmbedLLM.Provider == ProviderOllama {
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = "http://localhost:11434"
		}
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = "nomic-embed-text"
		}
	}
	if cfg.EmbedLLM.BatchSize <= 0 {
		cfg.EmbedLLM.BatchSize = 64
	}

	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = ProviderAnthropic
	}
	if len(cfg.InferenceLLM.Models) == 0 && cfg.InferenceLLM.Provider == ProviderAnthropic {
		cfg.InferenceLLM.Models = []string{"claude-3-haiku-20240307", "claude-sonnet-4-5-20250929"}
	}
	if cfg.InferenceLLM.Model == "" && len(cfg.InferenceLLM.Models) == 0 && cfg.InferenceLLM.Provider == ProviderOpenAI {
		cfg.InferenceLLM.Model = "gpt-4o-mini"
	}
	if cfg.InferenceLLM.Model == "" && len(cfg.InferenceLLM.Models) > 0 {
		cfg.InferenceLLM.Model = cfg.InferenceLLM.Models[0]
	}
	if cfg.InferenceLLM.Model != "" && !slices.Contains(cfg.InferenceLLM.Models, cfg.InferenceLLM.Model) {
		cfg.InferenceLLM.Models = append(cfg.InferenceLLM.Models, cfg.InferenceLLM.Model)
	}
	if cfg.InferenceLLM.KeyEnv == "" {
		switch cfg.InferenceLLM.Provider {
		case ProviderAnthropic:
			cfg.InferenceLLM.KeyEnv = "ANTHROPIC_API_KEY"
		case ProviderOpenAI:
			cfg.InferenceLLM.KeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.InferenceLLM.MaxTokens <= 0 {
		cfg.InferenceLLM.MaxTokens = 1024
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = DefaultChunkSize
	}
	if cfg.RAG.Splitter == "" {
		cfg.RAG.Splitter = SplitterCharacter
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = DefaultTopK
	}
	if cfg.RAG.Index == "" {
		cfg.RAG.Index = IndexMemory
	}
}

// ResolveKeys copies API keys from the environment into the config.
func (c *Config) ResolveKeys() {
	if c.EmbedLLM.KeyEnv != "" {
		c.EmbedLLM.Key = strings.TrimSpace(os.Getenv(c.EmbedLLM.KeyEnv))
	}
	if c.InferenceLLM.KeyEnv != "" {
		c.InferenceLLM.Key = strings.TrimSpace(os.Getenv(c.InferenceLLM.KeyEnv))
	}
	c.Database.Password = os.Getenv("PDFRAG_DB_PASSWORD")
}

// Validate checks static configuration. Missing API keys are not a
// validation failure: they are reported per stage by RequireEmbedKey and
// RequireAll so the loader can still run without credentials.
func (c *Config) Validate() error {
	switch c.EmbedLLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidSettings, c.EmbedLLM.Provider)
	}
	switch c.InferenceLLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown inference provider %q", ErrInvalidSettings, c.InferenceLLM.Provider)
	}
	switch c.RAG.Splitter {
	case SplitterCharacter, SplitterRecursive:
	default:
		return fmt.Errorf("%w: unknown splitter %q", ErrInvalidSettings, c.RAG.Splitter)
	}
	switch c.RAG.Index {
	case IndexMemory:
	case IndexPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for the postgres index", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown index %q", ErrInvalidSettings, c.RAG.Index)
	}
	return c.DefaultSettings().Validate(c.InferenceLLM.Models)
}

// DefaultSettings returns the user-adjustable parameters a new session starts with.
func (c *Config) DefaultSettings() Settings {
	return Settings{
		Model:        c.InferenceLLM.Model,
		Temperature:  c.InferenceLLM.Temperature,
		ChunkSize:    c.RAG.ChunkSize,
		ChunkOverlap: c.RAG.ChunkOverlap,
		TopK:         c.RAG.TopK,
	}
}
