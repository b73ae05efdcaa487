package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGVectorStore implements IndexStore on PostgreSQL with the pgvector
// extension. Index definitions live in rag_indexes and chunks in rag_chunks.
// Search ranks by cosine distance regardless of the recorded metric.
type PGVectorStore struct {
	pool *pgxpool.Pool
}

// NewPGVectorStore connects to dsn and creates the schema if missing.
func NewPGVectorStore(ctx context.Context, dsn string) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	s := &PGVectorStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS rag_indexes (
    name        TEXT        PRIMARY KEY,
    dimension   INTEGER     NOT NULL,
    metric      TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS rag_chunks (
    index_name  TEXT   NOT NULL REFERENCES rag_indexes (name) ON DELETE CASCADE,
    id          TEXT   NOT NULL,
    content     TEXT   NOT NULL,
    source      TEXT   NOT NULL,
    metadata    JSONB  NOT NULL DEFAULT '{}',
    embedding   vector NOT NULL,
    PRIMARY KEY (index_name, id)
);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: migrate: %w", err)
	}
	return nil
}

// CreateIndex records a new index definition.
func (s *PGVectorStore) CreateIndex(ctx context.Context, name string, dimension int, metric string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO rag_indexes (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		name, dimension, metric)
	if err != nil {
		return fmt.Errorf("pgvector: create index %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return IndexExists("pgvector.create", name)
	}
	return nil
}

// ListIndexes returns index names in alphabetical order.
func (s *PGVectorStore) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM rag_indexes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pgvector: list indexes: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pgvector: list indexes: %w", err)
	}
	return names, nil
}

// DescribeIndex returns the definition and chunk count of one index.
func (s *PGVectorStore) DescribeIndex(ctx context.Context, name string) (IndexStats, error) {
	stats := IndexStats{Name: name}
	err := s.pool.QueryRow(ctx, `
SELECT i.dimension, i.metric, (SELECT count(*) FROM rag_chunks c WHERE c.index_name = i.name)
FROM rag_indexes i WHERE i.name = $1`, name).Scan(&stats.Dimension, &stats.Metric, &stats.VectorCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return IndexStats{}, IndexNotFound("pgvector.describe", name)
	}
	if err != nil {
		return IndexStats{}, fmt.Errorf("pgvector: describe %q: %w", name, err)
	}
	return stats, nil
}

// DeleteIndex removes an index; its chunks cascade.
func (s *PGVectorStore) DeleteIndex(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rag_indexes WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("pgvector: delete index %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return IndexNotFound("pgvector.delete", name)
	}
	return nil
}

// Upsert writes all chunks in one batch.
func (s *PGVectorStore) Upsert(ctx context.Context, index string, docs []Document, vectors [][]float32) error {
	if err := checkBatch(docs, vectors); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	stats, err := s.DescribeIndex(ctx, index)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO rag_chunks (index_name, id, content, source, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (index_name, id) DO UPDATE
SET content = EXCLUDED.content, source = EXCLUDED.source,
    metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for i, doc := range docs {
		if len(vectors[i]) != stats.Dimension {
			return fmt.Errorf("pgvector: vector %d has dimension %d, index %q expects %d", i, len(vectors[i]), index, stats.Dimension)
		}
		meta := doc.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		batch.Queue(q, index, doc.ID, doc.Content, doc.Source, meta, pgvector.NewVector(vectors[i]))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector: upsert: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance.
func (s *PGVectorStore) Search(ctx context.Context, index string, vector []float32, k int) ([]Document, error) {
	if _, err := s.DescribeIndex(ctx, index); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, content, source, metadata, 1 - (embedding <=> $2) AS score
FROM rag_chunks
WHERE index_name = $1
ORDER BY embedding <=> $2
LIMIT $3`, index, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, k)
	for rows.Next() {
		var (
			doc   Document
			score float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Source, &doc.Metadata, &score); err != nil {
			return nil, fmt.Errorf("pgvector: search scan: %w", err)
		}
		doc.Score = float32(score)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	return docs, nil
}

// Ping checks that a pooled connection can reach the server.
func (s *PGVectorStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}
