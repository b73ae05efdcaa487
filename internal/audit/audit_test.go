package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "azure"); got != "azure" {
		t.Errorf("expected 'azure', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.agentrag/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.agentrag/config.yaml" {
			t.Errorf("expected '~/.agentrag/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("PGVECTOR_DSN", "postgres://user:hunter2@db/rag")
	t.Setenv("VECTOR_BACKEND", "pgvector")
	t.Setenv("OPENAI_API_KEY", "")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "serve", "")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["PGVECTOR_DSN"] != "set" {
		t.Errorf("PGVECTOR_DSN: expected redacted 'set', got %v", rec["PGVECTOR_DSN"])
	}
	if rec["OPENAI_API_KEY"] != "unset" {
		t.Errorf("OPENAI_API_KEY: expected 'unset', got %v", rec["OPENAI_API_KEY"])
	}
	if rec["VECTOR_BACKEND"] != "pgvector" {
		t.Errorf("VECTOR_BACKEND: expected plain value, got %v", rec["VECTOR_BACKEND"])
	}
	if rec["command"] != "serve" || rec["config_file"] != "none" {
		t.Errorf("unexpected command fields: %v", rec)
	}
}
