package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResultStore writes finished reports to <dir>/<job_id>.txt.
type ResultStore struct {
	dir string
}

// NewResultStore creates the output directory if needed.
func NewResultStore(dir string) (*ResultStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("output directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", abs, err)
	}
	return &ResultStore{dir: abs}, nil
}

// Write replaces the artifact for jobID with result. The temp-file rename keeps
// concurrent polls from observing a half-written file, and rewriting the same
// result leaves identical content.
func (s *ResultStore) Write(ctx context.Context, jobID, result string) error {
	if jobID == "" || jobID != filepath.Base(jobID) || strings.HasPrefix(jobID, ".") {
		return fmt.Errorf("invalid job id %q", jobID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+jobID+"-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.WriteString(result)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}

	if err := os.Rename(tmpName, s.PathFor(jobID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// PathFor returns where the artifact for jobID lives.
func (s *ResultStore) PathFor(jobID string) string {
	return filepath.Join(s.dir, jobID+".txt")
}
