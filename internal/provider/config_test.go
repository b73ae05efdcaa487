package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
			},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg:  Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},

		// ── Azure OpenAI ──────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
					APIVersion: "2024-02-01",
				},
			},
		},
		{
			name: "azure/missing api key",
			cfg: Config{
				Backend:     BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o"},
			},
			wantErr: "AZURE_OPENAI_API_KEY",
		},
		{
			name: "azure/missing endpoint",
			cfg: Config{
				Backend:     BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Deployment: "gpt-4o"},
			},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name: "azure/missing deployment",
			cfg: Config{
				Backend:     BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Endpoint: "https://my.openai.azure.com"},
			},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name: "ark/valid",
			cfg:  Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key", Model: "doubao-pro"}},
		},
		{
			name:    "ark/missing api key",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{Model: "doubao-pro"}},
			wantErr: "ARK_API_KEY",
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key"}},
			wantErr: "ARK_MODEL",
		},

		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg:  Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"}},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-1.5-pro"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── Unknown backend ───────────────────────────────────────────────────
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "unknown"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		{"o1", true},
		{"o1-preview", true},
		{"o3-mini", true},
		{"o4-mini", true},
		{"O3-Mini", true},
		{"codex-mini", true},
		{"gpt-5.2-codex", false},
		{"gpt-4o", false},
		{"gpt-4.1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			if got := isAzureReasoningModel(tc.deployment); got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"MODEL_PROVIDER", "OLLAMA_MODEL", "OLLAMA_HOST", "MODEL_MAX_TOKENS", "AZURE_OPENAI_API_VERSION"} {
		t.Setenv(k, "")
	}

	cfg := ConfigFromEnv()
	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, "llama3", cfg.Ollama.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, "2024-02-01", cfg.AzureOpenAI.APIVersion)
	assert.Equal(t, "llama3", cfg.ModelName())
}

// recordingModel captures the resolved common options of the last call.
type recordingModel struct {
	got *model.Options
}

func (r *recordingModel) Generate(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	r.got = model.GetCommonOptions(&model.Options{}, opts...)
	return schema.AssistantMessage("ok", nil), nil
}

func (r *recordingModel) Stream(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	r.got = model.GetCommonOptions(&model.Options{}, opts...)
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("ok", nil)}), nil
}

func TestFactory_ForAgentAppliesTuning(t *testing.T) {
	t.Parallel()

	rec := &recordingModel{}
	f := NewFactoryWithModel(Config{Backend: BackendOpenAI, MaxTokens: 4096}, rec)

	maxTokens := 256
	_, err := f.ForAgent(Tuning{Temperature: 0.3, MaxTokens: &maxTokens}).Generate(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, rec.got.Temperature)
	assert.InDelta(t, 0.3, *rec.got.Temperature, 1e-6)
	require.NotNil(t, rec.got.MaxTokens)
	assert.Equal(t, 256, *rec.got.MaxTokens)
}

func TestFactory_ForAgentFallsBackToConfiguredMaxTokens(t *testing.T) {
	t.Parallel()

	rec := &recordingModel{}
	f := NewFactoryWithModel(Config{Backend: BackendOllama, MaxTokens: 1024}, rec)

	sr, err := f.ForAgent(Tuning{Temperature: 0.7}).Stream(context.Background(), nil)
	require.NoError(t, err)
	sr.Close()
	require.NotNil(t, rec.got.MaxTokens)
	assert.Equal(t, 1024, *rec.got.MaxTokens)
}

func TestFactory_CallerOptionsWin(t *testing.T) {
	t.Parallel()

	rec := &recordingModel{}
	f := NewFactoryWithModel(Config{Backend: BackendOpenAI}, rec)

	_, err := f.ForAgent(Tuning{Temperature: 0.7}).Generate(context.Background(), nil, model.WithTemperature(0))
	require.NoError(t, err)
	require.NotNil(t, rec.got.Temperature)
	assert.Zero(t, *rec.got.Temperature)
}

func TestFactory_ReasoningDeploymentSkipsTemperature(t *testing.T) {
	t.Parallel()

	rec := &recordingModel{}
	f := NewFactoryWithModel(Config{
		Backend:     BackendAzure,
		AzureOpenAI: ProviderAzureOpenAI{Deployment: "o3-mini"},
	}, rec)

	_, err := f.ForAgent(Tuning{Temperature: 0.7}).Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, rec.got.Temperature)
	assert.Equal(t, BackendAzure, f.Backend())
	assert.Equal(t, "o3-mini", f.ModelName())
}
