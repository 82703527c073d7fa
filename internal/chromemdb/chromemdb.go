package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

const (
	metaPage   = "page"
	metaIndex  = "index"
	metaStart  = "start"
	metaEnd    = "end"
	metaSource = "source"
)

var errEmbeddingRequired = errors.New("documents and queries must carry precomputed embeddings")

// VectorDBManager keeps the chunks of one session in an in-memory chromem
// collection and answers cosine-similarity queries against it.
type VectorDBManager struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
}

// NewVectorDBManager initializes an in-memory database holding a single collection
func NewVectorDBManager(collectionName string) (*VectorDBManager, error) {
	m := &VectorDBManager{
		db:             chromem.NewDB(),
		collectionName: collectionName,
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, noEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Rebuild drops whatever the collection held and stores docs in its place.
func (m *VectorDBManager) Rebuild(ctx context.Context, docs []models.ChunkEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.resetLocked(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        strconv.Itoa(d.Index),
			Content:   d.Content,
			Metadata:  createMetadata(d),
			Embedding: d.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", m.collectionName).Int("documents", len(docs)).Msg("Rebuilt collection")
	return nil
}

// Search returns the k most similar chunks ordered by similarity, then by
// chunk index so equal scores always come back in the same order.
//
// chromem picks its top N concurrently, so a tie at the cutoff would make the
// selection random. Every chunk is scored and the cut happens here.
func (m *VectorDBManager) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(query) == 0 {
		return nil, errors.New("query embedding is required")
	}
	count := m.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		chunk, err := parseMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("corrupt metadata for document %s: %w", r.ID, err)
		}
		chunk.Content = r.Content
		out = append(out, models.SearchResult{Chunk: chunk, Similarity: r.Similarity})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Index < out[j].Index
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Count(), nil
}

// Reset empties the collection.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked()
}

func (m *VectorDBManager) resetLocked() error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.getOrCreateCollection()
	return err
}

func (m *VectorDBManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.DeleteCollection(m.collectionName)
}

func noEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errEmbeddingRequired
}

// meta data will have source filename, page number, chunk index and offsets
func createMetadata(d models.ChunkEmbedding) map[string]string {
	return map[string]string{
		metaPage:   strconv.Itoa(d.PageNumber),
		metaIndex:  strconv.Itoa(d.Index),
		metaStart:  strconv.Itoa(d.Start),
		metaEnd:    strconv.Itoa(d.End),
		metaSource: d.SourceFilename,
	}
}

func parseMetadata(meta map[string]string) (models.Chunk, error) {
	var chunk models.Chunk
	fields := []struct {
		key string
		dst *int
	}{
		{metaPage, &chunk.PageNumber},
		{metaIndex, &chunk.Index},
		{metaStart, &chunk.Start},
		{metaEnd, &chunk.End},
	}
	for _, f := range fields {
		v, err := strconv.Atoi(meta[f.key])
		if err != nil {
			return chunk, fmt.Errorf("field %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return chunk, nil
}
