package llmservice

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// Router sends each model id of the catalog to its provider
type Router struct {
	routes  map[string]Generator
	order   []string
	closers []io.Closer
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Generator)}
}

// NewRouterFromConfig registers every catalog model whose provider can be
// initialized. Models of other providers are skipped with a warning.
func NewRouterFromConfig(ctx context.Context, cfg *config.Config) *Router {
	r := NewRouter()
	generators := make(map[string]Generator)
	for _, m := range cfg.Models {
		g, ok := generators[m.Provider]
		if !ok {
			var err error
			g, err = newProvider(ctx, m.Provider, &cfg.Providers)
			if err != nil {
				log.Warn().Err(err).Str("provider", m.Provider).Msg("Provider unavailable")
			}
			generators[m.Provider] = g
		}
		if g == nil {
			log.Warn().Str("model", m.ID).Msg("Skipping model without provider")
			continue
		}
		r.Register(m.ID, g)
	}
	return r
}

func newProvider(ctx context.Context, provider string, providers *config.ProvidersConfig) (Generator, error) {
	var (
		g   Generator
		err error
	)
	switch provider {
	case config.ProviderOpenAI:
		g, err = NewOpenAI(&providers.OpenAI)
	case config.ProviderOllama:
		g, err = NewOllama(&providers.Ollama)
	case config.ProviderGemini:
		g, err = NewGemini(ctx, &providers.Gemini)
	default:
		err = fmt.Errorf("unsupported provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Router) Register(modelID string, g Generator) {
	if _, ok := r.routes[modelID]; !ok {
		r.order = append(r.order, modelID)
	}
	r.routes[modelID] = g
	if c, ok := g.(io.Closer); ok && !r.hasCloser(c) {
		r.closers = append(r.closers, c)
	}
}

func (r *Router) hasCloser(c io.Closer) bool {
	for _, known := range r.closers {
		if known == c {
			return true
		}
	}
	return false
}

// Close releases every provider client that holds resources
func (r *Router) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Models lists registered model ids in registration order
func (r *Router) Models() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Router) Has(modelID string) bool {
	_, ok := r.routes[modelID]
	return ok
}

func (r *Router) Generate(ctx context.Context, modelID string, messages []models.Turn) (string, error) {
	g, ok := r.routes[modelID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return g.Generate(ctx, modelID, messages)
}
