package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"document-chat/internal/chunker"
	"document-chat/internal/config"
	"document-chat/internal/helper"
	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/parser"
	"document-chat/internal/rag"
	"document-chat/internal/session"
	"document-chat/internal/vectorindex"
)

var ErrNoDocuments = errors.New("upload a document first")

// Session is the state of one conversation. It is owned by the caller and
// not safe for concurrent use.
type Session struct {
	ID      string
	History session.History
	Index   vectorindex.State
	Model   string
}

// File is an uploaded document
type File struct {
	Name string
	Data []byte
}

type FileResult struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

type UploadReport struct {
	Files []FileResult `json:"files"`
	Added int          `json:"added"`
}

type Service struct {
	location string
	catalog  []string
	loader   *parser.Loader
	chunker  *chunker.Chunker
	indexer  *vectorindex.Indexer
	router   *llmservice.Router
	rag      *rag.RAG
}

func NewService(cfg *config.Config, indexer *vectorindex.Indexer, router *llmservice.Router) (*Service, error) {
	c, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	var catalog []string
	for _, id := range cfg.ModelIDs() {
		if router.Has(id) {
			catalog = append(catalog, id)
		}
	}
	return &Service{
		location: cfg.Index.Location,
		catalog:  catalog,
		loader:   parser.NewLoader(),
		chunker:  c,
		indexer:  indexer,
		router:   router,
		rag:      rag.NewRAG(router, cfg.RAG.TopK, cfg.RAG.SystemPrompt),
	}, nil
}

// Models returns the usable part of the configured catalog, default
// model first
func (s *Service) Models() []string {
	out := make([]string, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// Close releases the model provider clients
func (s *Service) Close() error {
	return s.router.Close()
}

// LoadIndex reads the index at the configured location
func (s *Service) LoadIndex(ctx context.Context) (vectorindex.State, error) {
	return s.indexer.Load(ctx, s.location)
}

func (s *Service) NewSession(ctx context.Context) (*Session, error) {
	state, err := s.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return s.SessionFor(state)
}

// SessionFor starts a session on an already loaded index
func (s *Service) SessionFor(state vectorindex.State) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: id, Index: state}
	if ids := s.Models(); len(ids) > 0 {
		sess.Model = ids[0]
	}
	return sess, nil
}

// SelectModel switches the session to another catalog model
func (s *Service) SelectModel(sess *Session, modelID string) error {
	if !s.inCatalog(modelID) {
		return fmt.Errorf("%w: %q", llmservice.ErrUnknownModel, modelID)
	}
	sess.Model = modelID
	return nil
}

func (s *Service) inCatalog(modelID string) bool {
	for _, id := range s.catalog {
		if id == modelID {
			return true
		}
	}
	return false
}

// Prepare extracts and chunks one document
func (s *Service) Prepare(name string, data []byte) ([]models.Chunk, error) {
	segments, err := s.loader.Parse(name, data)
	if err != nil {
		return nil, err
	}
	return s.chunker.Chunk(name, segments), nil
}

// Commit adds chunks to the session's index as one batch. An empty batch
// leaves the index untouched.
func (s *Service) Commit(ctx context.Context, sess *Session, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ix, err := s.indexer.Add(ctx, sess.Index, chunks)
	if err != nil {
		return err
	}
	sess.Index = ix
	return nil
}

// Upload extracts every file and adds all chunks in one batch. A file that
// cannot be read is reported and does not affect the others.
func (s *Service) Upload(ctx context.Context, sess *Session, files []File) (*UploadReport, error) {
	report := &UploadReport{}
	var chunks []models.Chunk
	for _, f := range files {
		result := FileResult{Name: f.Name}
		fileChunks, err := s.Prepare(f.Name, f.Data)
		if err != nil {
			log.Warn().Err(err).Str("file", f.Name).Msg("Skipping document")
			result.Error = err.Error()
		} else {
			result.Chunks = len(fileChunks)
			chunks = append(chunks, fileChunks...)
		}
		report.Files = append(report.Files, result)
	}

	if err := s.Commit(ctx, sess, chunks); err != nil {
		return report, fmt.Errorf("failed to add documents to the index: %w", err)
	}
	report.Added = len(chunks)
	log.Info().Int("files", len(files)).Int("chunks", report.Added).Msg("Uploaded documents")
	return report, nil
}

// Ask answers question with modelID, or the session's model when modelID is
// empty. The exchange is recorded only when an answer was produced.
func (s *Service) Ask(ctx context.Context, sess *Session, modelID, question string) (*models.PromptResponse, error) {
	if modelID == "" {
		modelID = sess.Model
	}
	if !s.inCatalog(modelID) {
		return nil, fmt.Errorf("%w: %q", llmservice.ErrUnknownModel, modelID)
	}

	ix, ok := sess.Index.(*vectorindex.Index)
	if !ok {
		return nil, ErrNoDocuments
	}

	resp, err := s.rag.Answer(ctx, modelID, question, ix, sess.History)
	if err != nil {
		return nil, err
	}
	sess.History = sess.History.Exchange(question, resp.Content)
	return resp, nil
}
