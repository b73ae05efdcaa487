package embedder

import (
	"context"
	"fmt"

	"github.com/54b3r/agentrag-go/internal/config"
	"github.com/54b3r/agentrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
)

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is ollama, openai or azure.
	Provider   string
	Model      string
	APIKey     string
	Endpoint   string
	APIVersion string
	Dimensions int
}

// ConfigFromEnv resolves the embedding configuration with cascading defaults
// inherited from the chat provider when embedding-specific overrides are unset.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER when it is openai or azure, else ollama
//  2. EMBEDDING_API_KEY, else the provider's own key var
//  3. EMBEDDING_ENDPOINT, else OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//  4. EMBEDDING_MODEL, else the backend default
//  5. EMBEDDING_DIMENSIONS (0 = model default)
func ConfigFromEnv() Config {
	provider := config.String("EMBEDDING_PROVIDER", "")
	if provider == "" {
		switch p := config.String("MODEL_PROVIDER", ""); p {
		case "openai", "azure":
			provider = p
		default:
			provider = "ollama"
		}
	}

	cfg := Config{
		Provider:   provider,
		APIKey:     config.String("EMBEDDING_API_KEY", ""),
		Endpoint:   config.String("EMBEDDING_ENDPOINT", ""),
		Model:      config.String("EMBEDDING_MODEL", ""),
		Dimensions: config.Int("EMBEDDING_DIMENSIONS", 0),
	}
	switch provider {
	case "ollama":
		if cfg.Endpoint == "" {
			cfg.Endpoint = config.String("OLLAMA_HOST", "http://localhost:11434")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = config.String("OPENAI_API_KEY", "")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	case "azure":
		if cfg.APIKey == "" {
			cfg.APIKey = config.String("AZURE_OPENAI_API_KEY", "")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = config.String("AZURE_OPENAI_ENDPOINT", "")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		cfg.APIVersion = config.String("AZURE_OPENAI_API_VERSION", "2024-02-01")
	}
	return cfg
}

// New constructs the rag.Embedder selected by cfg.Provider.
func New(cfg Config) (rag.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model}), nil
	case "openai":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure)", cfg.Provider)
	}
}

// ProbeDimensions embeds a fixed string and returns the vector length. Index
// creation uses it when the caller does not state a dimension.
func ProbeDimensions(ctx context.Context, e rag.Embedder) (int, error) {
	vecs, err := e.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("embedder: probe dimensions: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("embedder: probe dimensions: empty embedding")
	}
	return len(vecs[0]), nil
}
