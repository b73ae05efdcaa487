// Package index manages named vector indexes: listing, creation, deletion,
// and the extract → chunk → embed → upsert build that fills an index from
// stored documents.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/embedder"
	"github.com/54b3r/agentrag-go/internal/rag"
)

// StatusReady is the only status an existing index reports.
const StatusReady = "ready"

// Build milestones reported through ProgressFunc.
const (
	ProgressResolved = 30
	ProgressChunked  = 60
	ProgressStored   = 90
)

// ErrIndexExists is returned by Create for a name already in use.
var ErrIndexExists = rag.ErrIndexExists

var namePattern = regexp.MustCompile(`^[a-z0-9-]{1,45}$`)

// Info is the public description of an index.
type Info struct {
	Name             string `json:"name"`
	Dimension        int    `json:"dimension"`
	Metric           string `json:"metric"`
	TotalVectorCount int64  `json:"total_vector_count"`
	Status           string `json:"status"`
}

// CreateRequest describes a new index. A nil Dimension is probed from the
// embedder; an empty Metric means cosine.
type CreateRequest struct {
	Name      string `json:"name"`
	Dimension *int   `json:"dimension,omitempty"`
	Metric    string `json:"metric,omitempty"`
}

// ProgressFunc receives build progress as a percentage.
type ProgressFunc func(percent int)

// DocumentSource resolves stored documents to local file paths.
type DocumentSource interface {
	Path(ctx context.Context, filename string) (string, error)
	Paths(ctx context.Context) ([]string, error)
}

// Loader extracts, chunks, and embeds documents.
type Loader interface {
	Load(ctx context.Context, paths []string) ([]rag.Document, error)
	Embed(ctx context.Context, docs []rag.Document) ([][]float32, error)
}

// Service implements index management on top of a rag.IndexStore.
type Service struct {
	store    rag.IndexStore
	docs     DocumentSource
	loader   Loader
	embedder rag.Embedder
	log      *slog.Logger
}

// NewService wires a Service. emb is only used to probe dimensions.
func NewService(store rag.IndexStore, docs DocumentSource, loader Loader, emb rag.Embedder, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, docs: docs, loader: loader, embedder: emb, log: log}
}

// ValidateName checks that name is 1-45 lower-case letters, digits or '-'.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return apperr.Validation("index.validate",
			"Invalid index name %q: use 1-45 lower-case letters, digits or '-'", name)
	}
	return nil
}

// List describes every index. Indexes that cannot be described are skipped
// with a warning.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	names, err := s.store.ListIndexes(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "index.list", err, "could not list indexes")
	}
	out := make([]Info, 0, len(names))
	for _, name := range names {
		stats, err := s.store.DescribeIndex(ctx, name)
		if err != nil {
			s.log.Warn("index: describe failed", slog.String("index", name), slog.String("error", err.Error()))
			continue
		}
		out = append(out, toInfo(stats))
	}
	return out, nil
}

// Get describes one index.
func (s *Service) Get(ctx context.Context, name string) (Info, error) {
	stats, err := s.store.DescribeIndex(ctx, name)
	if err != nil {
		return Info{}, classify("index.get", err)
	}
	return toInfo(stats), nil
}

// Create makes a new empty index.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Info, error) {
	const op = "index.create"
	if err := ValidateName(req.Name); err != nil {
		return Info{}, err
	}
	metric, err := normalizeMetric(req.Metric)
	if err != nil {
		return Info{}, err
	}

	var dim int
	switch {
	case req.Dimension != nil && *req.Dimension <= 0:
		return Info{}, apperr.Validation(op, "dimension must be positive, got %d", *req.Dimension)
	case req.Dimension != nil:
		dim = *req.Dimension
	default:
		if dim, err = embedder.ProbeDimensions(ctx, s.embedder); err != nil {
			return Info{}, apperr.Wrap(apperr.KindExecution, op, err, "could not determine embedding dimension")
		}
	}

	if err := s.store.CreateIndex(ctx, req.Name, dim, metric); err != nil {
		return Info{}, classify(op, err)
	}
	s.log.Info("index created", slog.String("index", req.Name), slog.Int("dimension", dim), slog.String("metric", metric))
	return s.Get(ctx, req.Name)
}

// Delete removes an index.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.DeleteIndex(ctx, name); err != nil {
		return classify("index.delete", err)
	}
	s.log.Info("index deleted", slog.String("index", name))
	return nil
}

// UpdateWithDocuments indexes the named stored documents into name, creating
// the index when it does not exist yet.
func (s *Service) UpdateWithDocuments(ctx context.Context, name string, filenames []string, progress ProgressFunc) (Info, error) {
	const op = "index.update"
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	if len(filenames) == 0 {
		return Info{}, apperr.Validation(op, "document_paths must not be empty")
	}
	paths := make([]string, 0, len(filenames))
	for _, f := range filenames {
		p, err := s.docs.Path(ctx, f)
		if err != nil {
			return Info{}, err
		}
		paths = append(paths, p)
	}
	return s.build(ctx, op, name, paths, progress)
}

// UpdateFromStore indexes every stored document into name.
func (s *Service) UpdateFromStore(ctx context.Context, name string, progress ProgressFunc) (Info, error) {
	const op = "index.update_from_directory"
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	paths, err := s.docs.Paths(ctx)
	if err != nil {
		return Info{}, err
	}
	if len(paths) == 0 {
		return Info{}, apperr.Validation(op, "no documents have been uploaded")
	}
	return s.build(ctx, op, name, paths, progress)
}

func (s *Service) build(ctx context.Context, op, name string, paths []string, progress ProgressFunc) (Info, error) {
	if progress == nil {
		progress = func(int) {}
	}
	log := s.log.With(slog.String("index", name))
	log.Info("index build started", slog.Int("documents", len(paths)))
	progress(ProgressResolved)

	docs, err := s.loader.Load(ctx, paths)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.KindExecution, op, err, "document processing failed")
	}
	log.Info("documents chunked", slog.Int("chunks", len(docs)))
	progress(ProgressChunked)

	if len(docs) == 0 {
		info, err := s.Get(ctx, name)
		if err != nil {
			return Info{}, apperr.Validation(op, "no text could be extracted from the documents")
		}
		return info, nil
	}

	vectors, err := s.loader.Embed(ctx, docs)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.KindExecution, op, err, "embedding failed")
	}
	if err := s.ensure(ctx, name, len(vectors[0])); err != nil {
		return Info{}, err
	}
	if err := s.store.Upsert(ctx, name, docs, vectors); err != nil {
		return Info{}, apperr.Wrap(apperr.KindExecution, op, err, "upsert failed")
	}
	progress(ProgressStored)

	info, err := s.Get(ctx, name)
	if err != nil {
		return Info{}, err
	}
	log.Info("index build finished", slog.Int64("total_vector_count", info.TotalVectorCount))
	return info, nil
}

// ensure creates name with the given dimension if it does not exist, and
// rejects a dimension mismatch against an existing index.
func (s *Service) ensure(ctx context.Context, name string, dim int) error {
	stats, err := s.store.DescribeIndex(ctx, name)
	if err == nil {
		if stats.Dimension != 0 && stats.Dimension != dim {
			return apperr.New(apperr.KindConfiguration, "index.ensure",
				"index %s has dimension %d but the embedder produces %d", name, stats.Dimension, dim)
		}
		return nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return classify("index.ensure", err)
	}
	s.log.Info("index missing, creating", slog.String("index", name), slog.Int("dimension", dim))
	if err := s.store.CreateIndex(ctx, name, dim, rag.MetricCosine); err != nil && apperr.KindOf(err) != apperr.KindValidation {
		return classify("index.ensure", err)
	}
	return nil
}

func toInfo(st rag.IndexStats) Info {
	metric := st.Metric
	if metric == "" {
		metric = rag.MetricCosine
	}
	return Info{
		Name:             st.Name,
		Dimension:        st.Dimension,
		Metric:           metric,
		TotalVectorCount: st.VectorCount,
		Status:           StatusReady,
	}
}

func normalizeMetric(m string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "", rag.MetricCosine:
		return rag.MetricCosine, nil
	case rag.MetricEuclidean:
		return rag.MetricEuclidean, nil
	case rag.MetricDotProduct:
		return rag.MetricDotProduct, nil
	}
	return "", apperr.Validation("index.create", "unsupported metric %q (valid: cosine, euclidean, dotproduct)", m)
}

// classify keeps NotFound and Validation errors from the store as they are
// and marks everything else as an execution failure.
func classify(op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation:
		return err
	}
	return apperr.Wrap(apperr.KindExecution, op, err, fmt.Sprintf("%s failed", op))
}
