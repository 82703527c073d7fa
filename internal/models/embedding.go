package models

import "time"

// Chunk represents a parsed chunk with metadata. Start and End are rune
// offsets into the text of page PageNumber.
type Chunk struct {
	Index      int    `json:"index"`
	PageNumber int    `json:"page_number"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Content    string `json:"content"`
}

type ChunkEmbedding struct {
	Chunk
	SourceFilename string    `json:"source_filename"`
	Embedding      []float32 `json:"-"`
}

type SearchResult struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

// Turn is one question and answer of a session's chat history.
type Turn struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Timestamp time.Time      `json:"timestamp"`
	Model     string         `json:"model"`
	Sources   []SearchResult `json:"sources,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

type ProcessingStats struct {
	FileName     string        `json:"file_name"`
	Pages        int           `json:"pages"`
	Chunks       int           `json:"chunks"`
	ChunkSize    int           `json:"chunk_size"`
	ChunkOverlap int           `json:"chunk_overlap"`
	Duration     time.Duration `json:"duration"`
	Reused       bool          `json:"reused"`
}
