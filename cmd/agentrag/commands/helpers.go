package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/54b3r/agentrag-go/internal/agent"
	"github.com/54b3r/agentrag-go/internal/budget"
	"github.com/54b3r/agentrag-go/internal/config"
	"github.com/54b3r/agentrag-go/internal/document"
	"github.com/54b3r/agentrag-go/internal/embedder"
	"github.com/54b3r/agentrag-go/internal/index"
	"github.com/54b3r/agentrag-go/internal/ingestion"
	"github.com/54b3r/agentrag-go/internal/provider"
	"github.com/54b3r/agentrag-go/internal/rag"
	"github.com/54b3r/agentrag-go/internal/store"
)

// defaultDataDir is where uploaded documents live when AGENTRAG_DATA_DIR is unset.
const defaultDataDir = "data"

// backend bundles the storage and indexing dependencies shared by every
// command. Fields are populated by openBackend; executor and models are only
// set by withExecutor.
type backend struct {
	log       *slog.Logger
	embedder  rag.Embedder
	vectors   rag.IndexStore
	documents *document.FSStore
	agents    *store.SQLiteStore
	indexes   *index.Service
	models    *provider.Factory
	executor  *agent.Executor
}

// openBackend opens the vector store, the document directory and the agent
// database and builds the index service on top of them.
func openBackend(ctx context.Context, log *slog.Logger) (*backend, error) {
	embCfg := embedder.ConfigFromEnv()
	if err := embCfg.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.New(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embCfg.Provider), slog.String("model", embCfg.Model))

	storeCfg := rag.StoreConfigFromEnv()
	vectors, err := rag.OpenStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s vector store: %w", storeCfg.Backend, err)
	}
	log.Info("vector store opened", slog.String("backend", storeCfg.Backend))

	dataDir := config.String("AGENTRAG_DATA_DIR", defaultDataDir)
	docs, err := document.NewFSStore(filepath.Join(dataDir, "documents"), log)
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}
	log.Info("document store ready", slog.String("dir", docs.Dir()))

	dbPath, err := agentsDBPath()
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}
	agents, err := store.Open(dbPath)
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}
	log.Info("agent store opened", slog.String("path", dbPath))

	pipe, err := ingestion.NewPipeline(ingestion.PDFExtractor{}, emb, &ingestion.Config{
		ChunkSize:    config.Int("CHUNK_SIZE", 0),
		ChunkOverlap: config.Int("CHUNK_OVERLAP", 0),
	})
	if err != nil {
		_ = agents.Close()
		_ = vectors.Close()
		return nil, err
	}

	return &backend{
		log:       log,
		embedder:  emb,
		vectors:   vectors,
		documents: docs,
		agents:    agents,
		indexes:   index.NewService(vectors, docs, pipe, emb, log),
	}, nil
}

// agentsDBPath returns AGENTRAG_AGENTS_DB or the per-user default.
func agentsDBPath() (string, error) {
	if p := config.String("AGENTRAG_AGENTS_DB", ""); p != "" {
		return p, nil
	}
	return store.DefaultDBPath()
}

// withExecutor builds the chat model factory and the agent executor.
func (b *backend) withExecutor(ctx context.Context) error {
	providerCfg := provider.ConfigFromEnv()
	models, err := provider.NewFactory(ctx, providerCfg)
	if err != nil {
		return fmt.Errorf("failed to initialise model provider: %w", err)
	}
	b.log.Info("provider initialised",
		slog.String("provider", string(models.Backend())),
		slog.String("model", models.ModelName()),
	)

	retriever, err := rag.NewRetriever(b.embedder, b.vectors, agent.RetrievalTopK)
	if err != nil {
		return err
	}
	exec, err := agent.New(agent.Config{
		Agents:    b.agents,
		Models:    models,
		Retriever: retriever,
		Counter:   budget.NewCounter(b.log),
	})
	if err != nil {
		return fmt.Errorf("failed to initialise executor: %w", err)
	}
	b.models, b.executor = models, exec
	return nil
}

// Close releases the agent database and the vector store.
func (b *backend) Close() error {
	return errors.Join(b.agents.Close(), b.vectors.Close())
}
