package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"document-chat/internal/models"
)

// meta data will have source filename, page number, chunk id and offset
const (
	metaSource  = "source"
	metaPage    = "page"
	metaChunkID = "chunk_id"
	metaOffset  = "offset"

	manifestFile = "manifest.yaml"
	dataDir      = "chromem"
)

// VectorDBManager encapsulates the chromem-go database operations. The
// manifest file is written last and marks the index as existing.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	dbPath         string
	collectionName string
	compress       bool
	encryptionKey  string
	embed          chromem.EmbeddingFunc
}

// NewVectorDBManager prepares a manager for the index stored under dbPath.
// Nothing is read or created until the first operation.
func NewVectorDBManager(dbPath, collectionName string, compress bool, encryptionKey string, embed chromem.EmbeddingFunc) *VectorDBManager {
	return &VectorDBManager{
		dbPath:         dbPath,
		collectionName: collectionName,
		compress:       compress,
		encryptionKey:  encryptionKey,
		embed:          embed,
	}
}

func (m *VectorDBManager) manifestPath() string {
	return filepath.Join(m.dbPath, manifestFile)
}

func (m *VectorDBManager) dataPath() string {
	return filepath.Join(m.dbPath, dataDir)
}

// ReadManifest returns nil when no index has been committed at dbPath
func (m *VectorDBManager) ReadManifest(ctx context.Context) (*models.Manifest, error) {
	data, err := os.ReadFile(m.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest models.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", m.manifestPath(), err)
	}
	return &manifest, nil
}

func (m *VectorDBManager) writeManifest(manifest models.Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(m.dbPath, manifestFile+".*")
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.manifestPath()); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}
	return nil
}

func (m *VectorDBManager) open() error {
	if m.collection != nil {
		return nil
	}
	db, err := chromem.NewPersistentDB(m.dataPath(), m.compress)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	c, err := db.GetOrCreateCollection(m.collectionName, nil, m.embed)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.db = db
	m.collection = c
	return nil
}

// Create stores the first batch and commits the manifest. Any failure
// removes everything written so the location stays empty.
func (m *VectorDBManager) Create(ctx context.Context, manifest models.Manifest, records []models.ChunkEmbedding) error {
	_, statErr := os.Stat(m.dbPath)
	existed := statErr == nil
	if existed {
		// leftovers of an interrupted create have no manifest
		if err := os.RemoveAll(m.dataPath()); err != nil {
			return fmt.Errorf("failed to clear stale index data: %w", err)
		}
	}
	if err := os.MkdirAll(m.dbPath, 0o755); err != nil {
		return fmt.Errorf("failed to create index folder: %w", err)
	}

	err := m.open()
	if err == nil {
		err = m.CreateDocs(ctx, records)
	}
	if err == nil {
		err = m.writeManifest(manifest)
	}
	if err != nil {
		m.db, m.collection = nil, nil
		cleanup := m.dbPath
		if existed {
			cleanup = m.dataPath()
		}
		if rmErr := os.RemoveAll(cleanup); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", cleanup).Msg("Failed to remove partially created index")
		}
		return err
	}

	log.Info().Str("path", m.dbPath).Int("chunks", len(records)).Msg("Created vector index")
	return nil
}

// Append adds a batch to an existing index. Documents of a failed batch
// are deleted again.
func (m *VectorDBManager) Append(ctx context.Context, records []models.ChunkEmbedding) error {
	if err := m.open(); err != nil {
		return err
	}
	if err := m.CreateDocs(ctx, records); err != nil {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		m.rollback(ctx, ids)
		return err
	}
	log.Info().Str("path", m.dbPath).Int("chunks", len(records)).Msg("Appended to vector index")
	return nil
}

func (m *VectorDBManager) rollback(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, err := m.collection.GetByID(ctx, id); err != nil {
			continue
		}
		if err := m.collection.Delete(ctx, nil, nil, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to roll back document")
		}
	}
}

// CreateDocs adds multiple documents with precomputed embeddings
func (m *VectorDBManager) CreateDocs(ctx context.Context, records []models.ChunkEmbedding) error {
	documents := make([]chromem.Document, len(records))
	for i, r := range records {
		documents[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Chunk.Content,
			Metadata:  CreateMetadata(r.Chunk),
			Embedding: r.Embedding,
		}
	}
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	if err := m.open(); err != nil {
		return 0, err
	}
	return m.collection.Count(), nil
}

// Nearest performs a similarity search for a precomputed query embedding
func (m *VectorDBManager) Nearest(ctx context.Context, embedding []float32, k int) ([]models.Match, error) {
	if err := m.open(); err != nil {
		return nil, err
	}
	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       k,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]models.Match, len(results))
	for i, r := range results {
		matches[i] = models.Match{
			ID:         r.ID,
			Chunk:      chunkFromMetadata(r.Content, r.Metadata),
			Similarity: r.Similarity,
		}
	}
	return matches, nil
}

func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// Export writes a snapshot of the collection to filePath, encrypted when
// an encryption key is configured.
func (m *VectorDBManager) Export(ctx context.Context, filePath string) error {
	if err := m.open(); err != nil {
		return err
	}

	log.Debug().Msgf("Collection name: %s", m.collection.Name)
	log.Debug().Msgf("File path: %s", filePath)
	log.Debug().Msgf("Compress: %t", m.compress)
	log.Debug().Msgf("DB path: %s", m.dbPath)

	err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Close releases the in-memory copy. Data is already on disk.
func (m *VectorDBManager) Close() error {
	m.db, m.collection = nil, nil
	return nil
}

func CreateMetadata(chunk models.Chunk) map[string]string {
	return map[string]string{
		metaSource:  chunk.Source,
		metaPage:    strconv.Itoa(chunk.PageNumber),
		metaChunkID: strconv.Itoa(chunk.ChunkID),
		metaOffset:  strconv.Itoa(chunk.Offset),
	}
}

func chunkFromMetadata(content string, metadata map[string]string) models.Chunk {
	page, _ := strconv.Atoi(metadata[metaPage])
	chunkID, _ := strconv.Atoi(metadata[metaChunkID])
	offset, _ := strconv.Atoi(metadata[metaOffset])
	return models.Chunk{
		Content:    content,
		Source:     metadata[metaSource],
		PageNumber: page,
		ChunkID:    chunkID,
		Offset:     offset,
	}
}
