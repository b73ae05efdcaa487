package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements IndexStore with one Qdrant collection per index.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore dials Qdrant and returns a ready-to-use store.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

// CreateIndex creates a collection sized for dimension-length vectors.
func (s *QdrantStore) CreateIndex(ctx context.Context, name string, dimension int, metric string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return IndexExists("qdrant.create", name)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: toQdrantDistance(metric),
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	return nil
}

// ListIndexes returns the names of all collections.
func (s *QdrantStore) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: list collections: %w", err)
	}
	return names, nil
}

// DescribeIndex returns the vector size, distance and point count of a collection.
func (s *QdrantStore) DescribeIndex(ctx context.Context, name string) (IndexStats, error) {
	if err := s.mustExist(ctx, "qdrant.describe", name); err != nil {
		return IndexStats{}, err
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return IndexStats{}, fmt.Errorf("qdrant: collection info %q: %w", name, err)
	}

	stats := IndexStats{
		Name:        name,
		Metric:      MetricCosine,
		VectorCount: int64(info.GetPointsCount()),
	}
	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		stats.Dimension = int(params.GetSize())
		stats.Metric = fromQdrantDistance(params.GetDistance())
	}
	return stats, nil
}

// DeleteIndex drops the collection.
func (s *QdrantStore) DeleteIndex(ctx context.Context, name string) error {
	if err := s.mustExist(ctx, "qdrant.delete", name); err != nil {
		return err
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("qdrant: delete collection %q: %w", name, err)
	}
	return nil
}

// Upsert stores or updates a batch of documents with their embeddings.
func (s *QdrantStore) Upsert(ctx context.Context, index string, docs []Document, vectors [][]float32) error {
	if err := checkBatch(docs, vectors); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.mustExist(ctx, "qdrant.upsert", index); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]any{
			"content": doc.Content,
			"source":  doc.Source,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: index,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a similarity query and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, index string, vector []float32, k int) ([]Document, error) {
	if err := s.mustExist(ctx, "qdrant.search", index); err != nil {
		return nil, err
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: index,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		doc := Document{
			ID:       r.GetId().GetUuid(),
			Score:    r.GetScore(),
			Metadata: make(map[string]string),
		}
		for key, v := range r.GetPayload() {
			switch key {
			case "content":
				doc.Content = v.GetStringValue()
			case "source":
				doc.Source = v.GetStringValue()
			default:
				doc.Metadata[key] = v.GetStringValue()
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Ping runs the Qdrant health check.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) mustExist(ctx context.Context, op, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return IndexNotFound(op, name)
	}
	return nil
}

func toQdrantDistance(metric string) qdrant.Distance {
	switch strings.ToLower(metric) {
	case MetricEuclidean:
		return qdrant.Distance_Euclid
	case MetricDotProduct:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func fromQdrantDistance(d qdrant.Distance) string {
	switch d {
	case qdrant.Distance_Euclid:
		return MetricEuclidean
	case qdrant.Distance_Dot:
		return MetricDotProduct
	default:
		return MetricCosine
	}
}
