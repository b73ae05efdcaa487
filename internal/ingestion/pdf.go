package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the extracted text of one page of a source document.
type Page struct {
	// Source is the file path the page came from.
	Source string
	// Number is the 1-based page number.
	Number int
	// Text is the plain text of the page.
	Text string
}

// Extractor turns a stored file into pages of plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
}

// PDFExtractor extracts plain text page by page from PDF files.
type PDFExtractor struct{}

// Extract reads every page of the PDF at path. Pages without a content
// stream or without text are skipped.
func (PDFExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := make([]Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("ingestion: pdf %s page %d: %w", path, i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Source: path, Number: i, Text: text})
	}
	return pages, nil
}
