package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/splitter"
)

var (
	ErrNoDocument    = errors.New("no document has been processed; upload a PDF first")
	ErrIndexStale    = errors.New("chunk settings changed; process the document again")
	ErrEmptyQuestion = errors.New("please enter a question first")
	ErrNoChunks      = errors.New("no text chunks were created from the document")
	ErrIndexChanged  = errors.New("the document was reprocessed while answering; ask again")
)

// RAG is one user session: the loaded document, its vector index, the
// current settings and the chat history. Changes to the session are
// serialised; the embedding and LLM calls of a question run unlocked.
type RAG struct {
	id        string
	cfg       *config.Config
	providers Providers
	store     VectorStore
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	settings config.Settings
	doc      *models.Document
	chunks   []models.Chunk
	// indexed is true only while store holds exactly chunks.
	indexed bool
	// generation changes whenever the index is rebuilt or dropped.
	generation uint64
	stats      *models.ProcessingStats
	history []models.Turn
}

func NewRAG(id string, cfg *config.Config, providers Providers, store VectorStore) *RAG {
	return &RAG{
		id:        id,
		cfg:       cfg,
		providers: providers,
		store:     store,
		settings:  cfg.DefaultSettings(),
		logger:    log.With().Str("session", id).Logger(),
		now:       time.Now,
	}
}

func (r *RAG) ID() string { return r.id }

func (r *RAG) Settings() config.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// UpdateSettings validates and applies new settings. A change of chunk size
// or overlap empties the index; the document is kept so Reindex can rebuild.
func (r *RAG) UpdateSettings(ctx context.Context, next config.Settings) error {
	if err := next.Validate(r.cfg.InferenceLLM.Models); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settings.ChunkingChanged(next) && r.indexed {
		if err := r.invalidateLocked(ctx); err != nil {
			return err
		}
		r.logger.Info().Int("chunk_size", next.ChunkSize).Int("chunk_overlap", next.ChunkOverlap).Msg("Chunk settings changed, index invalidated")
	}
	r.settings = next
	r.logger.Debug().Interface("settings", next).Msg("Settings updated")
	return nil
}

// Ingest processes an uploaded file. Submitting the file that is already
// indexed under the current settings reuses the index.
func (r *RAG) Ingest(ctx context.Context, name string, data []byte) (*models.ProcessingStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.providers.Embedder(); err != nil {
		return nil, err
	}

	if r.indexed && r.doc != nil && r.doc.Name == name && r.doc.ID == models.DocumentID(data) {
		r.logger.Debug().Str("file", name).Msg("Using previously processed file")
		stats := *r.stats
		stats.Reused = true
		return &stats, nil
	}

	r.logger.Info().Str("file", name).Int("bytes", len(data)).Msg("Starting document processing")
	doc, err := parser.Load(name, data)
	if err != nil {
		r.logger.Error().Err(err).Str("file", name).Msg("Error loading document")
		return nil, err
	}
	return r.processLocked(ctx, doc)
}

// Reindex rebuilds the index of the current document with the current settings.
func (r *RAG) Reindex(ctx context.Context) (*models.ProcessingStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc == nil {
		return nil, ErrNoDocument
	}
	if _, err := r.providers.Embedder(); err != nil {
		return nil, err
	}
	return r.processLocked(ctx, r.doc)
}

func (r *RAG) processLocked(ctx context.Context, doc *models.Document) (*models.ProcessingStats, error) {
	start := r.now()
	settings := r.settings

	sp, err := splitter.New(r.cfg.RAG.Splitter, settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks, err := sp.Split(doc)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	r.logger.Info().Int("chunks", len(chunks)).Int("chunk_size", settings.ChunkSize).Int("chunk_overlap", settings.ChunkOverlap).Msg("Document split")

	embedder, err := r.providers.Embedder()
	if err != nil {
		return nil, err
	}
	embedded, err := embedding.GenerateEmbedding(ctx, embedder, doc.Name, chunks)
	if err != nil {
		r.logger.Error().Err(err).Msg("Error generating embeddings")
		return nil, err
	}

	// from here on the previous index is gone whatever happens
	r.indexed = false
	r.generation++
	if err := r.store.Rebuild(ctx, embedded); err != nil {
		r.doc, r.chunks, r.stats = nil, nil, nil
		r.logger.Error().Err(err).Msg("Error creating vector store")
		return nil, fmt.Errorf("failed to build vector index: %w", err)
	}

	newDocument := r.doc == nil || r.doc.ID != doc.ID || r.doc.Name != doc.Name
	r.doc = doc
	r.chunks = chunks
	r.indexed = true
	if newDocument {
		r.history = nil
	}
	r.stats = &models.ProcessingStats{
		FileName:     doc.Name,
		Pages:        doc.PageCount(),
		Chunks:       len(chunks),
		ChunkSize:    settings.ChunkSize,
		ChunkOverlap: settings.ChunkOverlap,
		Duration:     r.now().Sub(start),
	}
	r.logger.Info().Str("file", doc.Name).Dur("duration", r.stats.Duration).Msg("Document ready for questioning")

	stats := *r.stats
	return &stats, nil
}

// Ask answers a question from the indexed document and records the turn.
// The turn is dropped with ErrIndexChanged if the index was rebuilt or reset
// while the answer was being generated.
func (r *RAG) Ask(ctx context.Context, question string) (*models.Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	embedder, generation, settings, err := r.prepare()
	if err != nil {
		return nil, err
	}
	generator, err := r.providers.Generator()
	if err != nil {
		return nil, err
	}

	start := r.now()
	r.logger.Info().Str("question", helper.Truncate(question, 100)).Msg("Processing question")

	results, err := r.retrieve(ctx, embedder, question, settings.TopK)
	if err != nil {
		return nil, err
	}

	answer, err := generator.Generate(ctx, llmservice.Request{
		Prompt:      llmservice.BuildPrompt(results, question),
		Model:       settings.Model,
		Temperature: settings.Temperature,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("model", settings.Model).Msg("Error generating response")
		return nil, err
	}

	turn := models.Turn{
		Question:  question,
		Answer:    answer,
		Timestamp: r.now(),
		Model:     settings.Model,
		Sources:   results,
		Duration:  r.now().Sub(start),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != generation {
		r.logger.Warn().Msg("Index changed while answering, response discarded")
		return nil, ErrIndexChanged
	}
	r.history = append(r.history, turn)
	r.logger.Info().Dur("duration", turn.Duration).Int("turns", len(r.history)).Msg("Response added to chat history")
	return &turn, nil
}

// Retrieve returns the top K chunks for question without generating an answer.
func (r *RAG) Retrieve(ctx context.Context, question string, k int) ([]models.SearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	embedder, _, _, err := r.prepare()
	if err != nil {
		return nil, err
	}
	return r.retrieve(ctx, embedder, question, k)
}

// prepare checks that the session can answer and snapshots what a question
// needs, so the slow calls can run without holding the lock.
func (r *RAG) prepare() (embeddings.Embedder, uint64, config.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc == nil {
		return nil, 0, config.Settings{}, ErrNoDocument
	}
	if !r.indexed {
		return nil, 0, config.Settings{}, ErrIndexStale
	}
	embedder, err := r.providers.Embedder()
	if err != nil {
		return nil, 0, config.Settings{}, err
	}
	return embedder, r.generation, r.settings, nil
}

func (r *RAG) retrieve(ctx context.Context, embedder embeddings.Embedder, question string, k int) ([]models.SearchResult, error) {
	vec, err := embedding.EmbedQuestion(ctx, embedder, question)
	if err != nil {
		return nil, err
	}
	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().Int("results", len(results)).Msg("Retrieved chunks")
	return results, nil
}

// History returns the turns in the order they were asked.
func (r *RAG) History() []models.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Turn, len(r.history))
	copy(out, r.history)
	return out
}

func (r *RAG) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
	r.logger.Info().Msg("Chat history cleared by user")
}

// Reset drops the document, the index and the history. Settings are kept.
func (r *RAG) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.invalidateLocked(ctx); err != nil {
		return err
	}
	r.doc, r.stats, r.history = nil, nil, nil
	r.logger.Info().Msg("All session data reset by user")
	return nil
}

func (r *RAG) invalidateLocked(ctx context.Context) error {
	r.indexed = false
	r.generation++
	r.chunks = nil
	if err := r.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset vector index: %w", err)
	}
	return nil
}

// DocumentInfo describes the loaded document.
type DocumentInfo struct {
	Name    string                  `json:"name"`
	ID      string                  `json:"id"`
	Pages   int                     `json:"pages"`
	Chunks  int                     `json:"chunks"`
	Indexed bool                    `json:"indexed"`
	// IndexedChunks is what the vector store reports holding.
	IndexedChunks int                     `json:"indexed_chunks"`
	Stats         *models.ProcessingStats `json:"stats,omitempty"`
}

func (r *RAG) Document(ctx context.Context) (*DocumentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc == nil {
		return nil, ErrNoDocument
	}
	info := &DocumentInfo{
		Name:    r.doc.Name,
		ID:      r.doc.ID,
		Pages:   r.doc.PageCount(),
		Chunks:  len(r.chunks),
		Indexed: r.indexed,
	}
	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	info.IndexedChunks = count
	if r.indexed && r.stats != nil {
		stats := *r.stats
		info.Stats = &stats
	}
	return info, nil
}

// Chunks returns the chunks currently held by the index.
func (r *RAG) Chunks() []models.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func (r *RAG) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Close()
}
