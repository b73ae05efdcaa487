// Package document stores uploaded PDF documents on the local filesystem.
// Files live flat under one directory; names are sanitised on every entry
// point so a caller can never address a path outside it.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/54b3r/agentrag-go/internal/apperr"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 25 << 20

// ErrNotFound is wrapped by every operation that addresses a missing document.
var ErrNotFound = errors.New("document not found")

// Document describes one stored file.
type Document struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// FSStore keeps documents in a single directory.
type FSStore struct {
	dir string
	log *slog.Logger
}

// NewFSStore returns a store rooted at dir, creating the directory if needed.
func NewFSStore(dir string, log *slog.Logger) (*FSStore, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("document: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "document.init", err, "could not create document directory")
	}
	return &FSStore{dir: abs, log: log}, nil
}

// Dir returns the absolute storage directory.
func (s *FSStore) Dir() string { return s.dir }

// Upload validates filename and stores r under its sanitised name, replacing
// any existing file of that name. The content is written to a temporary file
// and renamed into place so readers never observe a partial upload.
func (s *FSStore) Upload(ctx context.Context, filename string, r io.Reader) (Document, error) {
	const op = "document.upload"
	if filename == "" {
		return Document{}, apperr.Validation(op, "No filename provided")
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".pdf" {
		return Document{}, apperr.Validation(op, "Invalid file type: %s. Only PDF files are allowed", ext)
	}
	name := Sanitize(filename)
	if strings.TrimSuffix(name, filepath.Ext(name)) == "" || !isPDF(name) {
		return Document{}, apperr.Validation(op, "Invalid filename after sanitization")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Document{}, apperr.Wrap(apperr.KindStorage, op, err, "could not create temporary file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, MaxFileSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Document{}, apperr.Wrap(apperr.KindStorage, op, err, "could not write document")
	}
	if n > MaxFileSize {
		return Document{}, apperr.Validation(op, "File too large: more than %d bytes", MaxFileSize)
	}

	target := filepath.Join(s.dir, name)
	if _, err := os.Stat(target); err == nil {
		s.log.Warn("document already exists, overwriting", slog.String("filename", name))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return Document{}, apperr.Wrap(apperr.KindStorage, op, err, "could not store document")
	}

	info, err := os.Stat(target)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.KindStorage, op, err, "could not stat document")
	}
	s.log.Info("document uploaded", slog.String("filename", name), slog.Int64("size_bytes", info.Size()))
	return s.describe(name, info), nil
}

// List returns every stored PDF sorted by filename.
func (s *FSStore) List(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "document.list", err, "could not list documents")
	}
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.log.Warn("document: skipping unreadable entry", slog.String("filename", e.Name()), slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, s.describe(e.Name(), info))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs, nil
}

// Delete removes one document.
func (s *FSStore) Delete(_ context.Context, filename string) error {
	path, err := s.resolve("document.delete", filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return apperr.Wrap(apperr.KindStorage, "document.delete", err, "could not delete document")
	}
	s.log.Info("document deleted", slog.String("filename", filepath.Base(path)))
	return nil
}

// Path returns the absolute path of a stored document.
func (s *FSStore) Path(_ context.Context, filename string) (string, error) {
	return s.resolve("document.path", filename)
}

// Paths returns the absolute paths of every stored PDF.
func (s *FSStore) Paths(ctx context.Context) ([]string, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		paths = append(paths, d.URL)
	}
	return paths, nil
}

// Ping reports whether the storage directory is still accessible.
func (s *FSStore) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("document: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document: %s is not a directory", s.dir)
	}
	return nil
}

func (s *FSStore) resolve(op, filename string) (string, error) {
	name := Sanitize(filename)
	if name == "" || name == "." || name == ".." {
		return "", apperr.Validation(op, "Invalid filename")
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()):
		return "", &apperr.Error{
			Kind: apperr.KindNotFound,
			Op:   op,
			Msg:  fmt.Sprintf("Document %s not found", name),
			Err:  ErrNotFound,
		}
	case err != nil:
		return "", apperr.Wrap(apperr.KindStorage, op, err, "could not stat document")
	}
	return path, nil
}

func (s *FSStore) describe(name string, info fs.FileInfo) Document {
	return Document{
		Filename:   name,
		URL:        filepath.Join(s.dir, name),
		SizeBytes:  info.Size(),
		UploadedAt: info.ModTime().UTC(),
	}
}

// Sanitize strips directory components and keeps only ASCII letters, digits,
// '-', '_' and '.'.
func Sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
