package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"document-chat/internal/chromemdb"
	"document-chat/internal/config"
	"document-chat/internal/db"
	"document-chat/internal/embedding"
	"document-chat/internal/models"
)

var (
	ErrEmptyInput        = errors.New("no chunks to add to the index")
	ErrEmptyIndex        = errors.New("the index does not contain any chunks")
	ErrIncompatibleIndex = errors.New("index was written by an incompatible version")
	ErrEmbedderMismatch  = errors.New("index was built with a different embedder")
	ErrDimensionMismatch = errors.New("embedding dimension does not match the index")
	ErrInvalidK          = errors.New("number of results must be positive")
)

// Store is the persistence behind an index. Create and Append are atomic
// per batch and durable when they return.
type Store interface {
	ReadManifest(ctx context.Context) (*models.Manifest, error)
	Create(ctx context.Context, manifest models.Manifest, records []models.ChunkEmbedding) error
	Append(ctx context.Context, records []models.ChunkEmbedding) error
	Count(ctx context.Context) (int, error)
	Nearest(ctx context.Context, embedding []float32, k int) ([]models.Match, error)
	Close() error
}

// State is either an *Index or Absent
type State interface {
	isState()
}

// Absent is the state of a location that holds no index yet
type Absent struct {
	Location string
}

func (Absent) isState() {}

// Index is a loaded, persisted vector index
type Index struct {
	location string
	store    Store
	manifest models.Manifest
	embedder embedding.Embedder
}

func (*Index) isState() {}

func (ix *Index) Location() string {
	return ix.location
}

func (ix *Index) Manifest() models.Manifest {
	return ix.manifest
}

// Store exposes the backend, e.g. for exports
func (ix *Index) Store() Store {
	return ix.store
}

func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

func (ix *Index) Close() error {
	return ix.store.Close()
}

// Query returns the k chunks nearest to text, nearest first. Fewer are
// returned when the index holds less than k chunks.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]models.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	count, err := ix.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	vector, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) != ix.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), ix.manifest.Dimension)
	}

	matches, err := ix.store.Nearest(ctx, vector, min(k, count))
	if err != nil {
		return nil, err
	}
	log.Debug().Int("k", k).Int("matches", len(matches)).Msg("Queried vector index")
	return matches, nil
}

// Indexer loads and grows indexes for one embedder
type Indexer struct {
	embedder embedding.Embedder
	index    config.IndexConfig
	database config.DatabaseConfig
	// openStore is replaced in tests
	openStore func(location string) (Store, error)
}

func NewIndexer(embedder embedding.Embedder, indexConfig config.IndexConfig, dbConfig config.DatabaseConfig) *Indexer {
	x := &Indexer{
		embedder: embedder,
		index:    indexConfig,
		database: dbConfig,
	}
	x.openStore = x.defaultStore
	return x
}

// IsDSN reports whether location points at Postgres rather than a folder
func IsDSN(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

func (x *Indexer) defaultStore(location string) (Store, error) {
	if IsDSN(location) {
		return db.Open(location, &x.database)
	}
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return x.embedder.EmbedQuery(ctx, text)
	}
	return chromemdb.NewVectorDBManager(location, x.index.Collection, x.index.Compress, x.index.EncryptionKey, embed), nil
}

// Load returns Absent if nothing was ever committed at location
func (x *Indexer) Load(ctx context.Context, location string) (State, error) {
	store, err := x.openStore(location)
	if err != nil {
		return nil, err
	}
	manifest, err := store.ReadManifest(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if manifest == nil {
		store.Close()
		log.Debug().Str("location", location).Msg("No vector index found")
		return Absent{Location: location}, nil
	}
	if err := x.check(manifest); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load index at %s: %w", location, err)
	}

	log.Info().Str("location", location).Str("embedder", manifest.Embedder).Msg("Loaded vector index")
	return &Index{location: location, store: store, manifest: *manifest, embedder: x.embedder}, nil
}

func (x *Indexer) check(manifest *models.Manifest) error {
	if manifest.Version != models.IndexVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrIncompatibleIndex, manifest.Version, models.IndexVersion)
	}
	if manifest.Embedder != x.embedder.Name() {
		return fmt.Errorf("%w: index uses %q, configured %q", ErrEmbedderMismatch, manifest.Embedder, x.embedder.Name())
	}
	return nil
}

// Add embeds chunks and stores them. An Absent state creates a new index
// holding just these chunks. Nothing is persisted when embedding fails.
func (x *Indexer) Add(ctx context.Context, state State, chunks []models.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := x.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	dimension, err := uniformDimension(vectors, len(chunks))
	if err != nil {
		return nil, err
	}

	records := make([]models.ChunkEmbedding, len(chunks))
	for i, ch := range chunks {
		records[i] = models.ChunkEmbedding{
			ID:        uuid.NewString(),
			Chunk:     ch,
			Embedding: vectors[i],
		}
	}

	switch s := state.(type) {
	case Absent:
		return x.create(ctx, s.Location, dimension, records)
	case *Index:
		if dimension != s.manifest.Dimension {
			return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, dimension, s.manifest.Dimension)
		}
		if err := s.store.Append(ctx, records); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown index state %T", state)
	}
}

func (x *Indexer) create(ctx context.Context, location string, dimension int, records []models.ChunkEmbedding) (*Index, error) {
	store, err := x.openStore(location)
	if err != nil {
		return nil, err
	}
	manifest := models.Manifest{
		Version:    models.IndexVersion,
		Collection: x.index.Collection,
		Embedder:   x.embedder.Name(),
		Dimension:  dimension,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Create(ctx, manifest, records); err != nil {
		store.Close()
		return nil, err
	}
	return &Index{location: location, store: store, manifest: manifest, embedder: x.embedder}, nil
}

func uniformDimension(vectors [][]float32, want int) (int, error) {
	if len(vectors) != want {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), want)
	}
	dimension := len(vectors[0])
	if dimension == 0 {
		return 0, fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return 0, fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return dimension, nil
}
