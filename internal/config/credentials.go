package config

import (
	"errors"
	"strings"
)

var ErrMissingAPIKeys = errors.New("missing API keys")

// MissingKeysError names the environment variables that have to be set.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return ErrMissingAPIKeys.Error() + ": " + strings.Join(e.Keys, ", ")
}

func (e *MissingKeysError) Unwrap() error { return ErrMissingAPIKeys }

// MissingKeys lists every required credential that is not set.
func (c *Config) MissingKeys() []string {
	var missing []string
	if name := c.EmbedLLM.missingKey(); name != "" {
		missing = append(missing, name)
	}
	if name := c.InferenceLLM.missingKey(); name != "" && name != c.EmbedLLM.missingKey() {
		missing = append(missing, name)
	}
	return missing
}

// RequireEmbedKey fails when the embedding credential is missing.
func (c *Config) RequireEmbedKey() error {
	if name := c.EmbedLLM.missingKey(); name != "" {
		return &MissingKeysError{Keys: []string{name}}
	}
	return nil
}

// RequireAll fails when any credential used to answer a question is missing.
func (c *Config) RequireAll() error {
	if missing := c.MissingKeys(); len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}
	return nil
}

// ollama runs locally and needs no key.
func (l LLMConfig) missingKey() string {
	if l.Provider == ProviderOllama || l.Key != "" {
		return ""
	}
	if l.KeyEnv == "" {
		return l.Provider + " api key"
	}
	return l.KeyEnv
}
