package config

import (
	"fmt"
	"slices"
)

// Settings are the parameters a user may change during a session.
type Settings struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	ChunkSize    int     `json:"chunk_size"`
	ChunkOverlap int     `json:"chunk_overlap"`
	TopK         int     `json:"top_k"`
}

// Validate enforces the documented ranges. An empty models list accepts any
// non-empty model name.
func (s Settings) Validate(models []string) error {
	if s.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidSettings)
	}
	if len(models) > 0 && !slices.Contains(models, s.Model) {
		return fmt.Errorf("%w: model %q is not one of %v", ErrInvalidSettings, s.Model, models)
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("%w: temperature %.2f outside [0, 1]", ErrInvalidSettings, s.Temperature)
	}
	if s.ChunkSize < MinChunkSize || s.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d outside [%d, %d]", ErrInvalidSettings, s.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap > MaxChunkOverlap {
		return fmt.Errorf("%w: chunk overlap %d outside [0, %d]", ErrInvalidSettings, s.ChunkOverlap, MaxChunkOverlap)
	}
	if s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidSettings, s.ChunkOverlap, s.ChunkSize)
	}
	if s.TopK < 1 || s.TopK > MaxTopK {
		return fmt.Errorf("%w: top k %d outside [1, %d]", ErrInvalidSettings, s.TopK, MaxTopK)
	}
	return nil
}

// ChunkingChanged reports whether moving from s to next requires the vector
// index to be rebuilt.
func (s Settings) ChunkingChanged(next Settings) bool {
	return s.ChunkSize != next.ChunkSize || s.ChunkOverlap != next.ChunkOverlap
}
