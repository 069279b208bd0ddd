package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-chat/internal/config"
)

// Embedder turns text into vectors. Name identifies provider and model and
// is recorded in the index manifest.
type Embedder interface {
	Name() string
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Error is returned for every failure of the embedding service
type Error struct {
	Provider string
	Model    string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed (%s/%s): %v", e.Provider, e.Model, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// LangChain adapts a langchaingo embedder
type LangChain struct {
	provider string
	model    string
	embedder embeddings.Embedder
}

func NewLangChain(provider, model string, embedder embeddings.Embedder) *LangChain {
	return &LangChain{provider: provider, model: model, embedder: embedder}
}

// NewEmbedder creates the embedder selected by the embed_llm config section
func NewEmbedder(llmConfig *config.LLMConfig) (*LangChain, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		llm, err := openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		client = llm
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", llmConfig.Provider)
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if llmConfig.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(llmConfig.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewLangChain(llmConfig.Provider, llmConfig.Model, embedder), nil
}

func (l *LangChain) Name() string {
	return l.provider + "/" + l.model
}

func (l *LangChain) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, l.wrap(err)
	}
	if len(vectors) != len(texts) {
		return nil, l.wrap(fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts)))
	}
	log.Debug().Int("texts", len(texts)).Str("embedder", l.Name()).Msg("Embedded documents")
	return vectors, nil
}

func (l *LangChain) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, l.wrap(err)
	}
	if len(vector) == 0 {
		return nil, l.wrap(fmt.Errorf("empty embedding"))
	}
	return vector, nil
}

func (l *LangChain) wrap(err error) error {
	return &Error{Provider: l.provider, Model: l.model, Cause: err}
}
