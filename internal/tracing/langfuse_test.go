package tracing

import (
	"log/slog"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Host != "http://localhost:3000" {
		t.Errorf("Host default: got %q", cfg.Host)
	}
	if cfg.Enabled() {
		t.Error("expected disabled without secret key")
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	flush := Setup(Config{}, slog.New(slog.DiscardHandler))
	if flush == nil {
		t.Fatal("flush must never be nil")
	}
	flush()
}
