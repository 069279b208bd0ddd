package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"document-chat/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	DriverPG = "pgdriver"
	DriverPQ = "pq"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Index     IndexConfig     `yaml:"index"`
	RAG       RAGConfig       `yaml:"rag"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	Providers ProvidersConfig `yaml:"providers"`
	Models    []ModelConfig   `yaml:"models"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
}

// IndexConfig locates the persisted vector index. Location is a directory
// for the chromem store or a postgres:// DSN for pgvector.
type IndexConfig struct {
	Location      string `yaml:"location"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	SystemPrompt string `yaml:"system_prompt"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type ProvidersConfig struct {
	OpenAI LLMConfig `yaml:"openai"`
	Ollama LLMConfig `yaml:"ollama"`
	Gemini LLMConfig `yaml:"gemini"`
}

// ModelConfig is one entry of the model catalog shown to users
type ModelConfig struct {
	ID       string `yaml:"id"`
	Provider string `yaml:"provider"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// LoadConfig reads .env (if present) and the YAML file at path. A missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{
		LogLevel: "info",
		Index: IndexConfig{
			Location:   "./db",
			Collection: "documents",
		},
		RAG: RAGConfig{
			ChunkSize:    models.DefaultChunkSize,
			ChunkOverlap: models.DefaultChunkOverlap,
			TopK:         models.DefaultTopK,
			SystemPrompt: models.SystemPrompt,
		},
		EmbedLLM: LLMConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-3-small",
			BatchSize: 64,
		},
		Providers: ProvidersConfig{
			OpenAI: LLMConfig{BaseURL: "https://api.openai.com/v1"},
			Ollama: LLMConfig{BaseURL: "http://localhost:11434"},
		},
		Database: DatabaseConfig{Driver: DriverPG},
		Server:   ServerConfig{Addr: ":8080", MaxUploadMB: 32},
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "documents"
	}
	if cfg.RAG.SystemPrompt == "" {
		cfg.RAG.SystemPrompt = models.SystemPrompt
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOpenAI
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPG
	}
	if len(cfg.Models) == 0 {
		for _, id := range models.DefaultModels {
			cfg.Models = append(cfg.Models, ModelConfig{ID: id, Provider: ProviderOpenAI})
		}
	}
	for i := range cfg.Models {
		if cfg.Models[i].Provider == "" {
			cfg.Models[i].Provider = ProviderOpenAI
		}
	}
}

// applyEnv fills API keys left empty in the file from the environment
func applyEnv(cfg *Config) {
	if cfg.Providers.OpenAI.Key == "" {
		cfg.Providers.OpenAI.Key = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.Gemini.Key == "" {
		cfg.Providers.Gemini.Key = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.EmbedLLM.Key == "" && cfg.EmbedLLM.Provider == ProviderOpenAI {
		cfg.EmbedLLM.Key = cfg.Providers.OpenAI.Key
	}
	if cfg.EmbedLLM.BaseURL == "" {
		switch cfg.EmbedLLM.Provider {
		case ProviderOpenAI:
			cfg.EmbedLLM.BaseURL = cfg.Providers.OpenAI.BaseURL
		case ProviderOllama:
			cfg.EmbedLLM.BaseURL = cfg.Providers.Ollama.BaseURL
		}
	}
	if loc := os.Getenv("DOCCHAT_INDEX"); loc != "" {
		cfg.Index.Location = loc
	}
}

func (c *Config) Validate() error {
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkSize <= c.RAG.ChunkOverlap {
		return fmt.Errorf("invalid rag config: chunk_size (%d) must be greater than chunk_overlap (%d) >= 0",
			c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("invalid rag config: top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.Index.Location == "" {
		return errors.New("invalid index config: location is required")
	}
	switch c.Database.Driver {
	case DriverPG, DriverPQ:
	default:
		return fmt.Errorf("invalid database config: unknown driver %q", c.Database.Driver)
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ID == "" {
			return errors.New("invalid models config: empty model id")
		}
		if seen[m.ID] {
			return fmt.Errorf("invalid models config: duplicate model %q", m.ID)
		}
		seen[m.ID] = true
		switch m.Provider {
		case ProviderOpenAI, ProviderOllama, ProviderGemini:
		default:
			return fmt.Errorf("invalid models config: unknown provider %q for %s", m.Provider, m.ID)
		}
	}
	return nil
}

// ModelIDs lists the catalog in configured order
func (c *Config) ModelIDs() []string {
	ids := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		ids = append(ids, m.ID)
	}
	return ids
}
