package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// Gemini generates with Google's Gemini models
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, llmConfig *config.LLMConfig) (*Gemini, error) {
	if llmConfig.Key == "" {
		return nil, errors.New("no gemini API key provided")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(llmConfig.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, modelID string, messages []models.Turn) (string, error) {
	system, history, prompt, err := geminiConversation(messages)
	if err != nil {
		return "", err
	}
	log.Debug().Str("model", modelID).Int("history", len(history)).Msg("Generating content with gemini")

	model := g.client.GenerativeModel(modelID)
	model.SystemInstruction = system
	chat := model.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content.WriteString(string(text))
		}
	}
	return content.String(), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// geminiConversation splits turns into the system instruction, the prior
// chat history and the final user prompt
func geminiConversation(messages []models.Turn) (*genai.Content, []*genai.Content, string, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != models.RoleUser {
		return nil, nil, "", errors.New("conversation must end with a user turn")
	}

	var system *genai.Content
	var systemText []string
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages[:len(messages)-1] {
		switch m.Role {
		case models.RoleSystem:
			systemText = append(systemText, m.Content)
		case models.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(systemText) > 0 {
		system = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(systemText, "\n\n"))}}
	}
	return system, history, messages[len(messages)-1].Content, nil
}
