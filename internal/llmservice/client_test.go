package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/llms"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// fakeLLM records the last request and answers with a fixed response
type fakeLLM struct {
	resp     *llms.ContentResponse
	err      error
	model    string
	messages []llms.MessageContent
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	f.model = opts.Model
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

var conversation = []models.Turn{
	{Role: models.RoleSystem, Content: "answer from context"},
	{Role: models.RoleUser, Content: "hi"},
	{Role: models.RoleAssistant, Content: "hello"},
	{Role: models.RoleUser, Content: "what is it about?"},
}

func TestLangChainGenerate(t *testing.T) {
	llm := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "It is about cats."}}}}
	got, err := NewLangChain(llm).Generate(context.Background(), "gpt-4", conversation)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "It is about cats." {
		t.Errorf("Generate() = %q", got)
	}
	if llm.model != "gpt-4" {
		t.Errorf("model = %q, want gpt-4", llm.model)
	}

	wantRoles := []llms.ChatMessageType{llms.ChatMessageTypeSystem, llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI, llms.ChatMessageTypeHuman}
	if len(llm.messages) != len(wantRoles) {
		t.Fatalf("sent %d messages, want %d", len(llm.messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if llm.messages[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, llm.messages[i].Role, role)
		}
	}
}

func TestLangChainGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
		want error
	}{
		{"no choices", &fakeLLM{resp: &llms.ContentResponse{}}, ErrEmptyResponse},
		{"transport", &fakeLLM{err: errors.New("connection reset")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLangChain(tt.llm).Generate(context.Background(), "gpt-4", conversation)
			if err == nil {
				t.Fatal("Generate() expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Generate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGeminiConversation(t *testing.T) {
	system, history, prompt, err := geminiConversation(conversation)
	if err != nil {
		t.Fatal(err)
	}
	if system == nil || system.Parts[0] != genai.Text("answer from context") {
		t.Errorf("system = %+v", system)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "model" {
		t.Errorf("history = %+v", history)
	}
	if prompt != "what is it about?" {
		t.Errorf("prompt = %q", prompt)
	}

	if _, _, _, err := geminiConversation(conversation[:3]); err == nil {
		t.Error("conversation ending with assistant turn accepted")
	}
}

type staticGenerator string

func (s staticGenerator) Generate(context.Context, string, []models.Turn) (string, error) {
	return string(s), nil
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	r.Register("gpt-4", staticGenerator("openai"))
	r.Register("gemini-1.5-flash", staticGenerator("gemini"))

	got, err := r.Generate(context.Background(), "gemini-1.5-flash", conversation)
	if err != nil || got != "gemini" {
		t.Errorf("Generate() = %q, %v", got, err)
	}
	if _, err := r.Generate(context.Background(), "claude", conversation); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Generate(unknown) error = %v, want ErrUnknownModel", err)
	}
	if ids := r.Models(); len(ids) != 2 || ids[0] != "gpt-4" {
		t.Errorf("Models() = %v", ids)
	}
}

func TestRouterFromConfigSkipsUnavailableProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Models = []config.ModelConfig{
		{ID: "llama3", Provider: config.ProviderOllama},
		{ID: "gemini-1.5-flash", Provider: config.ProviderGemini},
	}
	r := NewRouterFromConfig(context.Background(), cfg)
	if !r.Has("llama3") {
		t.Error("ollama model not registered")
	}
	if r.Has("gemini-1.5-flash") {
		t.Error("gemini model registered without an API key")
	}
}

type closingGenerator struct {
	staticGenerator
	closed int
}

func (c *closingGenerator) Close() error {
	c.closed++
	return nil
}

func TestRouterCloseReleasesProvidersOnce(t *testing.T) {
	gemini := &closingGenerator{staticGenerator: "gemini"}
	r := NewRouter()
	r.Register("gemini-1.5-flash", gemini)
	r.Register("gemini-1.5-pro", gemini)
	r.Register("gpt-4", staticGenerator("openai"))

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if gemini.closed != 1 {
		t.Errorf("provider closed %d times, want 1", gemini.closed)
	}
	if err := r.Close(); err != nil || gemini.closed != 1 {
		t.Errorf("second Close() = %v, closed %d times", err, gemini.closed)
	}
}
