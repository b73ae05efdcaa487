package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever implements Retriever by combining an Embedder and an
// IndexStore. It embeds the query at retrieval time and delegates similarity
// search to the store.
type DefaultRetriever struct {
	embedder    Embedder
	store       IndexStore
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever. defaultTopK sets the fallback
// result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, store IndexStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant chunks from
// index. A missing index surfaces as ErrIndexNotFound before any embedding
// call is made.
func (r *DefaultRetriever) Retrieve(ctx context.Context, index, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	if _, err := r.store.DescribeIndex(ctx, index); err != nil {
		return nil, err
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	docs, err := r.store.Search(ctx, index, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}
