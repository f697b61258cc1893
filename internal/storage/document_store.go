// Package storage keeps uploaded documents and finished report artifacts on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

const documentPrefix = "financial_document_"

// ErrDocumentTooLarge is returned when an upload exceeds the configured limit.
var ErrDocumentTooLarge = errors.New("document exceeds upload size limit")

// DocumentStoreOptions configures a DocumentStore.
type DocumentStoreOptions struct {
	Dir      string
	MaxBytes int64 // 0 disables the limit
	Logger   *slog.Logger
}

// DocumentStore writes each upload to <dir>/financial_document_<uuid>.pdf. The handle
// is the file name; it is owned by the job and removed by the worker.
type DocumentStore struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewDocumentStore creates the data directory if needed.
func NewDocumentStore(opts DocumentStoreOptions) (*DocumentStore, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("document directory is required")
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve document directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create document directory %s: %w", dir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{
		dir:      dir,
		maxBytes: opts.MaxBytes,
		logger:   logger.With("component", "document_store"),
	}, nil
}

// Save streams r to a fresh file and returns its handle. The data is written to a
// temporary file first so a handle never refers to a partial write.
func (s *DocumentStore) Save(ctx context.Context, r io.Reader) (string, error) {
	if r == nil {
		return "", apperrors.Ingestion(errors.New("no document provided"))
	}

	handle := documentPrefix + uuid.NewString() + ".pdf"
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", apperrors.Ingestion(fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err != nil {
		return "", apperrors.Ingestion(fmt.Errorf("write document: %w", err))
	}
	if closeErr != nil {
		return "", apperrors.Ingestion(fmt.Errorf("close document: %w", closeErr))
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		return "", apperrors.Ingestion(ErrDocumentTooLarge)
	}
	if err := ctx.Err(); err != nil {
		return "", apperrors.Ingestion(err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, handle)); err != nil {
		return "", apperrors.Ingestion(fmt.Errorf("commit document: %w", err))
	}
	committed = true

	s.logger.InfoContext(ctx, "document stored", "handle", handle, "bytes", written)
	return handle, nil
}

// Path resolves a handle to a file inside the data directory.
func (s *DocumentStore) Path(handle string) (string, error) {
	if handle == "" || handle != filepath.Base(handle) || strings.HasPrefix(handle, ".") {
		return "", apperrors.ValidationField("document_handle", "invalid document handle")
	}
	return filepath.Join(s.dir, handle), nil
}

// Delete removes the document. A missing file is not an error.
func (s *DocumentStore) Delete(ctx context.Context, handle string) error {
	path, err := s.Path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete document %s: %w", handle, err)
	}
	s.logger.DebugContext(ctx, "document deleted", "handle", handle)
	return nil
}

// Exists reports whether the handle still has a backing file.
func (s *DocumentStore) Exists(handle string) bool {
	path, err := s.Path(handle)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
