package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	pages map[string][]Page
	err   error
}

func (f fakeExtractor) Extract(_ context.Context, path string) ([]Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[path], nil
}

type countingEmbedder struct {
	batches []int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func TestPipeline_LoadAssignsMetadataAndStableIDs(t *testing.T) {
	t.Parallel()

	ext := fakeExtractor{pages: map[string][]Page{
		"/docs/handbook.pdf": {
			{Source: "/docs/handbook.pdf", Number: 1, Text: "first page"},
			{Source: "/docs/handbook.pdf", Number: 2, Text: "second page"},
		},
	}}
	p, err := NewPipeline(ext, &countingEmbedder{}, nil)
	require.NoError(t, err)

	docs, err := p.Load(context.Background(), []string{"/docs/handbook.pdf"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "handbook.pdf", docs[0].Metadata["source"])
	assert.Equal(t, "1", docs[0].Metadata["page"])
	assert.Equal(t, "2", docs[1].Metadata["page"])
	assert.Equal(t, "1", docs[1].Metadata["chunk_index"])
	assert.Equal(t, ChunkID("/docs/handbook.pdf", 1), docs[1].ID)

	_, err = uuid.Parse(docs[0].ID)
	assert.NoError(t, err, "chunk ids must be UUIDs")

	again, err := p.Load(context.Background(), []string{"/docs/handbook.pdf"})
	require.NoError(t, err)
	assert.Equal(t, docs[0].ID, again[0].ID)
}

func TestPipeline_ExtractError(t *testing.T) {
	t.Parallel()
	boom := errors.New("corrupt pdf")
	p, err := NewPipeline(fakeExtractor{err: boom}, &countingEmbedder{}, nil)
	require.NoError(t, err)

	_, err = p.Load(context.Background(), []string{"x.pdf"})
	assert.ErrorIs(t, err, boom)
}

func TestPipeline_EmbedBatches(t *testing.T) {
	t.Parallel()
	emb := &countingEmbedder{}
	p, err := NewPipeline(fakeExtractor{}, emb, &Config{BatchSize: 64})
	require.NoError(t, err)

	pages := make([]Page, 0, 150)
	for i := range 150 {
		pages = append(pages, Page{Source: "a.pdf", Number: i + 1, Text: "chunk"})
	}
	docs := p.Chunk(pages)
	require.Len(t, docs, 150)

	vecs, err := p.Embed(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, vecs, 150)
	assert.Equal(t, []int{64, 64, 22}, emb.batches)
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewPipeline(nil, &countingEmbedder{}, nil)
	assert.Error(t, err)
	_, err = NewPipeline(fakeExtractor{}, nil, nil)
	assert.Error(t, err)
}

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()
	s := NewSplitter(1000, 20)
	assert.Equal(t, []string{"hello world"}, s.Split("  hello world  "))
	assert.Empty(t, s.Split("   "))
}

func TestSplitter_PrefersParagraphs(t *testing.T) {
	t.Parallel()
	s := NewSplitter(20, 0)
	got := s.Split("alpha beta gamma\n\ndelta epsilon")
	assert.Equal(t, []string{"alpha beta gamma", "delta epsilon"}, got)
}

func TestSplitter_RespectsSizeAndOverlap(t *testing.T) {
	t.Parallel()
	words := make([]string, 0, 200)
	for range 200 {
		words = append(words, "word")
	}
	s := NewSplitter(50, 10)
	chunks := s.Split(strings.Join(words, " "))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50)
	}
	// "word word" (9 chars) fits inside a 10-char overlap, so consecutive
	// chunks share their boundary words.
	assert.True(t, strings.HasPrefix(chunks[1], "word word"))
	assert.True(t, strings.HasSuffix(chunks[0], "word word"))
}

func TestSplitter_FallsBackToCharacters(t *testing.T) {
	t.Parallel()
	s := NewSplitter(10, 0)
	got := s.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, got)
}
