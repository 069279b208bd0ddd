package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/session"
)

// Retriever returns the chunks nearest to a query, nearest first
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]models.Match, error)
}

// GenerationError wraps every failure of the language model call
type GenerationError struct {
	Model string
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Model, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

type RAG struct {
	generator    llmservice.Generator
	topK         int
	systemPrompt string
}

func NewRAG(generator llmservice.Generator, topK int, systemPrompt string) *RAG {
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	if systemPrompt == "" {
		systemPrompt = models.SystemPrompt
	}
	return &RAG{generator: generator, topK: topK, systemPrompt: systemPrompt}
}

// Answer retrieves context for query and asks the model. The history is
// only read; recording the exchange is up to the caller.
func (r *RAG) Answer(ctx context.Context, modelID, query string, retriever Retriever, history session.History) (*models.PromptResponse, error) {
	matches, err := retriever.Query(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("model", modelID).Int("sources", len(matches)).Msg("Retrieved context")

	messages := BuildMessages(r.systemPrompt, matches, history, query)
	content, err := r.generator.Generate(ctx, modelID, messages)
	if err != nil {
		return nil, &GenerationError{Model: modelID, Cause: err}
	}

	return &models.PromptResponse{
		Query:   query,
		Model:   modelID,
		Content: content,
		Sources: matches,
	}, nil
}

// BuildMessages puts the system instruction with the retrieved context
// first, then the prior turns and finally the query
func BuildMessages(systemPrompt string, matches []models.Match, history session.History, query string) []models.Turn {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Chunk.Content
	}
	system := fmt.Sprintf(models.ContextPromptTemplate, systemPrompt, strings.Join(texts, models.ContextSeparator))

	messages := make([]models.Turn, 0, history.Len()+2)
	messages = append(messages, models.Turn{Role: models.RoleSystem, Content: system})
	messages = append(messages, history.Messages()...)
	messages = append(messages, models.Turn{Role: models.RoleUser, Content: query})
	return messages
}
