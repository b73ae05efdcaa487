package rag

import (
	"context"
	"fmt"

	"github.com/54b3r/agentrag-go/internal/config"
)

// Backend names accepted by VECTOR_BACKEND.
const (
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
	BackendMemory   = "memory"
)

// StoreConfig selects and configures an IndexStore implementation.
type StoreConfig struct {
	Backend     string
	Qdrant      QdrantConfig
	PostgresDSN string
}

// StoreConfigFromEnv reads VECTOR_BACKEND, QDRANT_* and PGVECTOR_DSN.
func StoreConfigFromEnv() StoreConfig {
	return StoreConfig{
		Backend: config.String("VECTOR_BACKEND", BackendQdrant),
		Qdrant: QdrantConfig{
			Host:   config.String("QDRANT_HOST", "localhost"),
			Port:   config.Int("QDRANT_PORT", 6334),
			APIKey: config.String("QDRANT_API_KEY", ""),
			UseTLS: config.Bool("QDRANT_TLS", false),
		},
		PostgresDSN: config.String("PGVECTOR_DSN", ""),
	}
}

// OpenStore constructs the IndexStore selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg StoreConfig) (IndexStore, error) {
	switch cfg.Backend {
	case BackendQdrant:
		return NewQdrantStore(cfg.Qdrant)
	case BackendPGVector:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("rag: PGVECTOR_DSN is required for the pgvector backend")
		}
		return NewPGVectorStore(ctx, cfg.PostgresDSN)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("rag: unknown vector backend %q (valid: qdrant, pgvector, memory)", cfg.Backend)
	}
}
