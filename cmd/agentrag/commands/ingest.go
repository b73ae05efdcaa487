package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/agentrag-go/internal/index"
	"github.com/54b3r/agentrag-go/internal/logging"
)

// NewIngestCmd constructs the `agentrag ingest` command, which copies local
// PDFs into the document store and builds a vector index from them
// synchronously.
func NewIngestCmd() *cobra.Command {
	var indexName string
	var files []string
	var all bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index PDF documents into a named vector index",
		Long: `Copy PDF files into the document store and (re)build a vector index from them.

The index is created with the embedder's dimension and the cosine metric if it
does not exist yet. Re-ingesting a document replaces its chunks.

Examples:
  agentrag ingest --index handbook --file ./handbook.pdf
  agentrag ingest --index handbook --file a.pdf --file b.pdf
  agentrag ingest --index handbook --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 && !all {
				return errors.New("ingest: pass at least one --file or --all")
			}
			if err := index.ValidateName(indexName); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			b, err := openBackend(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = b.Close() }()

			stored := make([]string, 0, len(files))
			for _, path := range files {
				name, err := copyIntoStore(cmd, b, path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				stored = append(stored, name)
			}

			progress := func(p int) {
				log.Info("ingest progress", slog.String("index", indexName), slog.Int("progress", p))
			}

			var info index.Info
			if all {
				info, err = b.indexes.UpdateFromStore(ctx, indexName, progress)
			} else {
				info, err = b.indexes.UpdateWithDocuments(ctx, indexName, stored, progress)
			}
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}

	cmd.Flags().StringVarP(&indexName, "index", "i", "", "Target index name (lowercase letters, digits and hyphens)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Local PDF to upload and index (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Index every document already in the store")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

// copyIntoStore uploads a local file into the document store and returns its
// stored name.
func copyIntoStore(cmd *cobra.Command, b *backend, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := b.documents.Upload(cmd.Context(), filepath.Base(path), f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return doc.Filename, nil
}
