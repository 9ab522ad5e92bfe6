package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"invoicer/internal/config"
	"invoicer/internal/invoice"
	"invoicer/internal/ocr"
	"invoicer/internal/storage"
)

// Provider names accepted by Extract.
const (
	ProviderGemini     = "gemini"
	ProviderGroq       = "groq"
	ProviderDocumentAI = "documentai"
)

var knownProviders = []string{ProviderGemini, ProviderGroq, ProviderDocumentAI}

// Registry holds the configured providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get resolves a provider. Names outside the known set are a validation
// failure; known names without credentials report ErrProviderNotConfigured.
func (r *Registry) Get(name string) (Provider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	if !isKnown(name) {
		return nil, invoice.NewValidationError("model", fmt.Sprintf("model must be one of: %s", strings.Join(knownProviders, ", ")))
	}
	return nil, WrapExtractionError("Get", name, ErrProviderNotConfigured, "")
}

// Names lists configured providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases providers that hold client connections.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.providers {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func isKnown(name string) bool {
	for _, k := range knownProviders {
		if k == name {
			return true
		}
	}
	return false
}

// NewRegistryFromConfig builds every provider whose credentials are present.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, store storage.Provider, text ocr.OCRService) (*Registry, error) {
	registry := NewRegistry()

	for _, cc := range []CompletionConfig{GeminiConfig(cfg), GroqConfig(cfg)} {
		if cc.APIKey == "" {
			continue
		}
		completer, err := NewOpenAICompleter(cc)
		if err != nil {
			return nil, err
		}
		registry.Register(NewTextProvider(completer, store, text, cfg.AIMaxTextChars))
	}

	if cfg.DocumentAIConfigured() {
		p, err := NewDocumentAIProvider(ctx, DocumentAIConfigFrom(cfg), store, cfg.GoogleClientOptions()...)
		if err != nil {
			return nil, err
		}
		registry.Register(p)
	}

	if len(registry.providers) == 0 {
		return nil, WrapExtractionError("NewRegistryFromConfig", "", ErrProviderNotConfigured, "no AI provider credentials found")
	}
	return registry, nil
}
