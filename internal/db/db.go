package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

const manifestRowID = 1

// Document is one stored chunk
type Document struct {
	bun.BaseModel  `bun:"table:rag_chunks,alias:d"`
	ID             string          `bun:"id,pk"`
	Content        string          `bun:"content,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	SourceFilename string          `bun:"source_filename"`
	PageNumber     int             `bun:"page_number"`
	ChunkID        int             `bun:"chunk_id"`
	ChunkOffset    int             `bun:"chunk_offset"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	Similarity     float32         `bun:"similarity,scanonly"`
}

// Manifest is the single row that marks the index as existing
type Manifest struct {
	bun.BaseModel `bun:"table:rag_manifest,alias:m"`
	ID            int       `bun:"id,pk"`
	Version       int       `bun:"version,notnull"`
	Collection    string    `bun:"collection,notnull"`
	Embedder      string    `bun:"embedder,notnull"`
	Dimension     int       `bun:"dimension,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// Store keeps the vector index in Postgres with the pgvector extension
type Store struct {
	db *bun.DB
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens dsn with the configured driver
func ConnectDB(dsn string, dbConfig *config.DatabaseConfig) (*sql.DB, error) {
	if dbConfig.Driver == config.DriverPQ {
		return sql.Open("postgres", dsn)
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
}

func Open(dsn string, dbConfig *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(dsn, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: NewDB(sqldb, dbConfig.Debug)}, nil
}

// ReadManifest returns nil when the index tables have never been created
func (s *Store) ReadManifest(ctx context.Context) (*models.Manifest, error) {
	exists, err := s.db.NewSelect().
		TableExpr("information_schema.tables").
		Where("table_schema = current_schema()").
		Where("table_name = ?", "rag_manifest").
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up manifest table: %w", err)
	}
	if !exists {
		return nil, nil
	}

	var row Manifest
	err = s.db.NewSelect().Model(&row).Where("id = ?", manifestRowID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return &models.Manifest{
		Version:    row.Version,
		Collection: row.Collection,
		Embedder:   row.Embedder,
		Dimension:  row.Dimension,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// Create sets up the schema and stores the first batch in one transaction
func (s *Store) Create(ctx context.Context, manifest models.Manifest, records []models.ChunkEmbedding) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to enable pgvector: %w", err)
		}
		if _, err := tx.NewCreateTable().Model((*Manifest)(nil)).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create manifest table: %w", err)
		}
		if _, err := tx.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create chunks table: %w", err)
		}
		row := &Manifest{
			ID:         manifestRowID,
			Version:    manifest.Version,
			Collection: manifest.Collection,
			Embedder:   manifest.Embedder,
			Dimension:  manifest.Dimension,
			CreatedAt:  manifest.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("failed to store manifest: %w", err)
		}
		return StoreDocuments(ctx, tx, records)
	})
	if err != nil {
		return err
	}
	log.Info().Int("chunks", len(records)).Msg("Created vector index in postgres")
	return nil
}

// Append stores one batch atomically
func (s *Store) Append(ctx context.Context, records []models.ChunkEmbedding) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return StoreDocuments(ctx, tx, records)
	})
	if err != nil {
		return err
	}
	log.Info().Int("chunks", len(records)).Msg("Appended to vector index in postgres")
	return nil
}

func StoreDocuments(ctx context.Context, db bun.IDB, records []models.ChunkEmbedding) error {
	docs := make([]Document, len(records))
	for i, r := range records {
		docs[i] = Document{
			ID:             r.ID,
			Content:        r.Chunk.Content,
			Embedding:      pgvector.NewVector(r.Embedding),
			SourceFilename: r.Chunk.Source,
			PageNumber:     r.Chunk.PageNumber,
			ChunkID:        r.Chunk.ChunkID,
			ChunkOffset:    r.Chunk.Offset,
		}
	}
	if _, err := db.NewInsert().Model(&docs).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Nearest orders chunks by cosine distance to the query embedding
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int) ([]models.Match, error) {
	docs, err := SearchDocuments(ctx, s.db, embedding, k)
	if err != nil {
		return nil, err
	}
	matches := make([]models.Match, len(docs))
	for i, d := range docs {
		matches[i] = models.Match{
			ID: d.ID,
			Chunk: models.Chunk{
				Content:    d.Content,
				Source:     d.SourceFilename,
				PageNumber: d.PageNumber,
				ChunkID:    d.ChunkID,
				Offset:     d.ChunkOffset,
			},
			Similarity: d.Similarity,
		}
	}
	return matches, nil
}

func SearchDocuments(ctx context.Context, db *bun.DB, queryEmbedding []float32, limit int) ([]Document, error) {
	var docs []Document
	if err := searchQuery(db, &docs, queryEmbedding, limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, nil
}

func searchQuery(db *bun.DB, docs *[]Document, queryEmbedding []float32, limit int) *bun.SelectQuery {
	vec := pgvector.NewVector(queryEmbedding)
	return db.NewSelect().
		Model(docs).
		Column("id", "content", "source_filename", "page_number", "chunk_id", "chunk_offset").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(limit)
}

func (s *Store) Close() error {
	return s.db.Close()
}
