package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

var (
	ErrUnknownModel  = errors.New("unknown model")
	ErrEmptyResponse = errors.New("model returned no choices")
)

// Generator produces the assistant reply for a role-tagged conversation
type Generator interface {
	Generate(ctx context.Context, modelID string, messages []models.Turn) (string, error)
}

// LangChain generates with any langchaingo model, selecting the model per call
type LangChain struct {
	llm llms.Model
}

func NewLangChain(llm llms.Model) *LangChain {
	return &LangChain{llm: llm}
}

func NewOpenAI(llmConfig *config.LLMConfig) (*LangChain, error) {
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return NewLangChain(llm), nil
}

func NewOllama(llmConfig *config.LLMConfig) (*LangChain, error) {
	llm, err := ollama.New(ollama.WithServerURL(llmConfig.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return NewLangChain(llm), nil
}

// call llm
func (g *LangChain) Generate(ctx context.Context, modelID string, messages []models.Turn) (string, error) {
	log.Debug().Str("model", modelID).Int("messages", len(messages)).Msg("Generating content")
	res, err := g.llm.GenerateContent(ctx, ToMessageContent(messages), llms.WithModel(modelID))
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Content, nil
}

func ToMessageContent(messages []models.Turn) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}
