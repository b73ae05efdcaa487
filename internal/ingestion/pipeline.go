// Package ingestion turns stored documents into embedded chunks: it extracts
// page text, splits it into overlapping chunks with page and position
// metadata, and embeds the chunks in fixed-size batches. The index service
// drives these stages and writes the result into a vector index.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/54b3r/agentrag-go/internal/rag"
)

// DefaultEmbedBatchSize is the number of chunks sent per embedding request.
const DefaultEmbedBatchSize = 64

// chunkNamespace scopes deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c0a9e-2b7d-4c59-9a43-7e0d5b8f2c11")

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk. Defaults to 1000.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Defaults to 20.
	ChunkOverlap int

	// BatchSize is the number of chunks per embedding call. Defaults to 64.
	BatchSize int
}

// Pipeline extracts, chunks, and embeds documents.
type Pipeline struct {
	extractor Extractor
	splitter  *Splitter
	embedder  rag.Embedder
	batchSize int
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(extractor Extractor, embedder rag.Embedder, cfg *Config) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("ingestion: extractor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultEmbedBatchSize
	}
	overlap := cfg.ChunkOverlap
	if overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	return &Pipeline{
		extractor: extractor,
		splitter:  NewSplitter(cfg.ChunkSize, overlap),
		embedder:  embedder,
		batchSize: batch,
	}, nil
}

// Load extracts and chunks every file in paths, in order.
func (p *Pipeline) Load(ctx context.Context, paths []string) ([]rag.Document, error) {
	var docs []rag.Document
	for _, path := range paths {
		pages, err := p.extractor.Extract(ctx, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, p.Chunk(pages)...)
	}
	return docs, nil
}

// Chunk splits pages into documents carrying source, page and chunk_index
// metadata. chunk_index counts across the whole source, not per page.
func (p *Pipeline) Chunk(pages []Page) []rag.Document {
	var (
		docs  []rag.Document
		index = make(map[string]int)
	)
	for _, page := range pages {
		for _, text := range p.splitter.Split(page.Text) {
			i := index[page.Source]
			index[page.Source] = i + 1
			docs = append(docs, rag.Document{
				ID:      ChunkID(page.Source, i),
				Content: text,
				Source:  page.Source,
				Metadata: map[string]string{
					"source":      filepath.Base(page.Source),
					"page":        strconv.Itoa(page.Number),
					"chunk_index": strconv.Itoa(i),
				},
			})
		}
	}
	return docs
}

// Embed returns one vector per document, calling the embedder in batches.
func (p *Pipeline) Embed(ctx context.Context, docs []rag.Document) ([][]float32, error) {
	vectors := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += p.batchSize {
		end := min(start+p.batchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding batch %d-%d failed: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

// ChunkID returns a stable UUID for the i-th chunk of source so re-ingesting
// a file replaces its chunks instead of duplicating them.
func ChunkID(source string, i int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(i))).String()
}
