package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

// Document is one embedded chunk. Collection scopes rows to a session.
type Document struct {
	bun.BaseModel  `bun:"table:documents,alias:d"`
	ID             int64           `bun:"id,pk,autoincrement"`
	Collection     string          `bun:"collection,notnull"`
	ChunkID        int             `bun:"chunk_id,notnull"`
	PageNumber     int             `bun:"page_number,notnull"`
	StartOffset    int             `bun:"start_offset,notnull"`
	EndOffset      int             `bun:"end_offset,notnull"`
	SourceFilename string          `bun:"source_filename"`
	Content        string          `bun:"content,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Similarity     float32         `bun:"similarity,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// InitDB enables pgvector and creates the documents table.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Document)(nil)).
		Index("documents_collection_idx").
		Column("collection").
		IfNotExists().
		Exec(ctx)
	return err
}

// drop table documents
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

// VectorStore is the PostgreSQL counterpart of the in-memory index: one
// collection of chunk rows per session.
type VectorStore struct {
	db         *bun.DB
	collection string
}

func NewVectorStore(db *bun.DB, collection string) *VectorStore {
	return &VectorStore{db: db, collection: collection}
}

// Rebuild replaces the collection's rows in a single transaction.
func (s *VectorStore) Rebuild(ctx context.Context, docs []models.ChunkEmbedding) error {
	rows := make([]Document, len(docs))
	for i, d := range docs {
		rows[i] = Document{
			Collection:     s.collection,
			ChunkID:        d.Index,
			PageNumber:     d.PageNumber,
			StartOffset:    d.Start,
			EndOffset:      d.End,
			SourceFilename: d.SourceFilename,
			Content:        d.Content,
			Embedding:      pgvector.NewVector(d.Embedding),
		}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Document)(nil)).Where("collection = ?", s.collection).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("failed to store documents: %w", err)
		}
		log.Debug().Str("collection", s.collection).Int("documents", len(rows)).Msg("Stored documents")
		return nil
	})
}

// Search orders by cosine distance, then chunk id for a stable order.
func (s *VectorStore) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)

	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("chunk_id", "page_number", "start_offset", "end_offset", "source_filename", "content").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		Where("collection = ?", s.collection).
		OrderExpr("embedding <=> ?", vec).
		OrderExpr("chunk_id ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	results := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		results[i] = models.SearchResult{
			Chunk: models.Chunk{
				Index:      d.ChunkID,
				PageNumber: d.PageNumber,
				Start:      d.StartOffset,
				End:        d.EndOffset,
				Content:    d.Content,
			},
			Similarity: d.Similarity,
		}
	}
	return results, nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Where("collection = ?", s.collection).Count(ctx)
}

func (s *VectorStore) Reset(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*Document)(nil)).Where("collection = ?", s.collection).Exec(ctx)
	return err
}

// Close removes the session's rows; the shared connection stays open.
func (s *VectorStore) Close() error {
	return s.Reset(context.Background())
}
