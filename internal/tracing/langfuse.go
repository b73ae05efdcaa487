// Package tracing wires Langfuse into eino's global callback chain so every
// model call made by the agent executor is traced.
package tracing

import (
	"log/slog"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/agentrag-go/internal/config"
)

// Config holds the Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	return Config{
		Host:      config.String("LANGFUSE_HOST", "http://localhost:3000"),
		PublicKey: config.String("LANGFUSE_PUBLIC_KEY", ""),
		SecretKey: config.String("LANGFUSE_SECRET_KEY", ""),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup registers the Langfuse handler globally when cfg is enabled and
// returns a flush function that must run before process exit. When tracing
// is disabled the returned function is a no-op.
func Setup(cfg Config, log *slog.Logger) func() {
	if !cfg.Enabled() {
		log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled", slog.String("host", cfg.Host))

	return flush
}
