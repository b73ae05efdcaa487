package rag

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
)

// MemoryStore is an IndexStore held entirely in process memory. It backs
// VECTOR_BACKEND=memory for local development and the package tests of
// every layer above rag.
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*memIndex
}

type memIndex struct {
	dimension int
	metric    string
	order     []string
	docs      map[string]memEntry
}

type memEntry struct {
	doc    Document
	vector []float32
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]*memIndex)}
}

// CreateIndex registers an empty index.
func (s *MemoryStore) CreateIndex(_ context.Context, name string, dimension int, metric string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; ok {
		return IndexExists("memory.create", name)
	}
	s.indexes[name] = &memIndex{dimension: dimension, metric: metric, docs: make(map[string]memEntry)}
	return nil
}

// ListIndexes returns index names in alphabetical order.
func (s *MemoryStore) ListIndexes(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.indexes)), nil
}

// DescribeIndex returns the stats of one index.
func (s *MemoryStore) DescribeIndex(_ context.Context, name string) (IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return IndexStats{}, IndexNotFound("memory.describe", name)
	}
	return IndexStats{Name: name, Dimension: idx.dimension, Metric: idx.metric, VectorCount: int64(len(idx.docs))}, nil
}

// DeleteIndex drops an index.
func (s *MemoryStore) DeleteIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; !ok {
		return IndexNotFound("memory.delete", name)
	}
	delete(s.indexes, name)
	return nil
}

// Upsert stores or replaces documents by ID.
func (s *MemoryStore) Upsert(_ context.Context, index string, docs []Document, vectors [][]float32) error {
	if err := checkBatch(docs, vectors); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[index]
	if !ok {
		return IndexNotFound("memory.upsert", index)
	}
	for i, doc := range docs {
		if len(vectors[i]) != idx.dimension {
			return fmt.Errorf("rag: vector %d has dimension %d, index %q expects %d", i, len(vectors[i]), index, idx.dimension)
		}
		if _, seen := idx.docs[doc.ID]; !seen {
			idx.order = append(idx.order, doc.ID)
		}
		doc.Metadata = maps.Clone(doc.Metadata)
		idx.docs[doc.ID] = memEntry{doc: doc, vector: slices.Clone(vectors[i])}
	}
	return nil
}

// Search ranks every stored vector by cosine similarity. Ties keep insertion order.
func (s *MemoryStore) Search(_ context.Context, index string, vector []float32, k int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[index]
	if !ok {
		return nil, IndexNotFound("memory.search", index)
	}

	scored := make([]Document, 0, len(idx.order))
	for _, id := range idx.order {
		e := idx.docs[id]
		doc := e.doc
		doc.Metadata = maps.Clone(e.doc.Metadata)
		doc.Score = cosine(vector, e.vector)
		scored = append(scored, doc)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
