package rag

import (
	"context"

	"github.com/uptrace/bun"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/db"
	"pdf-rag/internal/models"
)

// VectorStore holds the embedded chunks of one session.
type VectorStore interface {
	// Rebuild replaces the whole content of the store.
	Rebuild(ctx context.Context, docs []models.ChunkEmbedding) error
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// StoreFactory opens the store of a session.
type StoreFactory func(ctx context.Context, name string) (VectorStore, error)

func MemoryStoreFactory() StoreFactory {
	return func(ctx context.Context, name string) (VectorStore, error) {
		m, err := chromemdb.NewVectorDBManager(name)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func PostgresStoreFactory(conn *bun.DB) StoreFactory {
	return func(ctx context.Context, name string) (VectorStore, error) {
		return db.NewVectorStore(conn, name), nil
	}
}
