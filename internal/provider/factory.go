package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/agentrag-go/internal/config"
)

// ConfigFromEnv builds a Config from environment variables. MODEL_PROVIDER
// selects the backend; each provider reads its own native credential vars.
//
//	MODEL_PROVIDER  = ollama | openai | azure | ark | gemini (default: ollama)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-pro)
//
//	Shared:  MODEL_MAX_TOKENS (default: 4096)
func ConfigFromEnv() Config {
	return Config{
		Backend: Backend(config.String("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  config.String("OLLAMA_HOST", "http://localhost:11434"),
			Model: config.String("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: config.String("OPENAI_API_KEY", ""),
			Model:  config.String("OPENAI_MODEL", "gpt-4o"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     config.String("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   config.String("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: config.String("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Ark: ProviderArk{
			APIKey:  config.String("ARK_API_KEY", ""),
			Model:   config.String("ARK_MODEL", ""),
			BaseURL: config.String("ARK_BASE_URL", ""),
		},
		Gemini: ProviderGemini{
			APIKey: config.String("GOOGLE_API_KEY", ""),
			Model:  config.String("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		MaxTokens: config.Int("MODEL_MAX_TOKENS", 4096),
	}
}

// New constructs the backend chat model for cfg. It validates the config first
// so callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	}
	return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
}

// Factory hands out per-agent views of a single shared backend model.
// It is safe for concurrent use.
type Factory struct {
	cfg  Config
	base model.BaseChatModel
}

// NewFactory builds the backend model for cfg and wraps it in a Factory.
func NewFactory(ctx context.Context, cfg Config) (*Factory, error) {
	base, err := New(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return NewFactoryWithModel(cfg, base), nil
}

// NewFactoryWithModel wraps an already constructed model.
func NewFactoryWithModel(cfg Config, base model.BaseChatModel) *Factory {
	return &Factory{cfg: cfg, base: base}
}

// Backend returns the configured backend name.
func (f *Factory) Backend() Backend { return f.cfg.Backend }

// ModelName returns the configured model or deployment name.
func (f *Factory) ModelName() string { return f.cfg.ModelName() }

// ForAgent returns a model whose every call carries the given tuning. Caller
// options passed to Generate or Stream are applied after the tuning and win.
func (f *Factory) ForAgent(t Tuning) model.BaseChatModel {
	opts := make([]model.Option, 0, 2)
	if !f.cfg.fixedTemperature() {
		opts = append(opts, model.WithTemperature(t.Temperature))
	}
	switch {
	case t.MaxTokens != nil:
		opts = append(opts, model.WithMaxTokens(*t.MaxTokens))
	case f.cfg.MaxTokens > 0:
		opts = append(opts, model.WithMaxTokens(f.cfg.MaxTokens))
	}
	return &tunedModel{inner: f.base, opts: opts}
}

type tunedModel struct {
	inner model.BaseChatModel
	opts  []model.Option
}

func (m *tunedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.inner.Generate(ctx, input, m.merge(opts)...)
}

func (m *tunedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.inner.Stream(ctx, input, m.merge(opts)...)
}

func (m *tunedModel) merge(opts []model.Option) []model.Option {
	out := make([]model.Option, 0, len(m.opts)+len(opts))
	out = append(out, m.opts...)
	return append(out, opts...)
}
