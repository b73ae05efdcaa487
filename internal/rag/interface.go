// Package rag defines the vector-index abstractions used for
// retrieval-augmented generation: a named-index vector store, an embedder,
// and a retriever that combines the two. Concrete stores (Qdrant, pgvector,
// in-memory) satisfy IndexStore so the agent layer never depends on a
// specific backend.
package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/54b3r/agentrag-go/internal/apperr"
)

// Supported similarity metrics.
const (
	MetricCosine     = "cosine"
	MetricEuclidean  = "euclidean"
	MetricDotProduct = "dotproduct"
)

var (
	// ErrIndexNotFound is wrapped by every operation that addresses a missing index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexExists is returned when creating an index that already exists.
	ErrIndexExists = errors.New("index already exists")
)

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the unique identifier for this chunk. Must be a UUID for Qdrant.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the origin file path of the document.
	Source string

	// Metadata holds arbitrary key-value pairs (page, chunk_index, etc.).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// IndexStats describes one named index.
type IndexStats struct {
	Name        string
	Dimension   int
	Metric      string
	VectorCount int64
}

// IndexStore persists embeddings into named indexes and searches them.
// Implementations must be safe to call from multiple goroutines.
type IndexStore interface {
	// CreateIndex creates an empty index. Returns ErrIndexExists if present.
	CreateIndex(ctx context.Context, name string, dimension int, metric string) error

	// ListIndexes returns the names of all indexes.
	ListIndexes(ctx context.Context) ([]string, error)

	// DescribeIndex returns the stats of one index or ErrIndexNotFound.
	DescribeIndex(ctx context.Context, name string) (IndexStats, error)

	// DeleteIndex removes an index and its vectors.
	DeleteIndex(ctx context.Context, name string) error

	// Upsert stores or replaces documents. vectors[i] is the embedding for docs[i].
	Upsert(ctx context.Context, index string, docs []Document, vectors [][]float32) error

	// Search returns the k documents most similar to vector.
	Search(ctx context.Context, index string, vector []float32, k int) ([]Document, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the chunks most relevant to a query from one index.
type Retriever interface {
	Retrieve(ctx context.Context, index, query string, topK int) ([]Document, error)
}

// IndexNotFound returns a NotFound error for name that wraps ErrIndexNotFound.
func IndexNotFound(op, name string) error {
	return &apperr.Error{
		Kind: apperr.KindNotFound,
		Op:   op,
		Msg:  fmt.Sprintf("Index %s not found", name),
		Err:  ErrIndexNotFound,
	}
}

// IndexExists returns a Validation error for name that wraps ErrIndexExists.
func IndexExists(op, name string) error {
	return &apperr.Error{
		Kind: apperr.KindValidation,
		Op:   op,
		Msg:  fmt.Sprintf("Index %s already exists", name),
		Err:  ErrIndexExists,
	}
}

func checkBatch(docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("rag: %d documents but %d vectors", len(docs), len(vectors))
	}
	return nil
}
