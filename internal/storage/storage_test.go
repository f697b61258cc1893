package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

func TestDocumentStore_SaveDelete(t *testing.T) {
	store, err := NewDocumentStore(DocumentStoreOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := store.Save(ctx, strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle, "financial_document_"))
	assert.True(t, strings.HasSuffix(handle, ".pdf"))
	assert.True(t, store.Exists(handle))

	path, err := store.Path(handle)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	require.NoError(t, store.Delete(ctx, handle))
	assert.False(t, store.Exists(handle))
	require.NoError(t, store.Delete(ctx, handle), "deleting twice is not an error")
}

func TestDocumentStore_ConcurrentSavesNeverCollide(t *testing.T) {
	store, err := NewDocumentStore(DocumentStoreOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	const n = 25
	handles := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, saveErr := store.Save(context.Background(), strings.NewReader("same bytes"))
			assert.NoError(t, saveErr)
			handles <- h
		}()
	}
	wg.Wait()
	close(handles)

	seen := map[string]bool{}
	for h := range handles {
		assert.False(t, seen[h], "duplicate handle %s", h)
		seen[h] = true
	}
	assert.Len(t, seen, n)
}

func TestDocumentStore_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDocumentStore(DocumentStoreOptions{Dir: dir, MaxBytes: 4})
	require.NoError(t, err)

	_, err = store.Save(context.Background(), strings.NewReader("too many bytes"))
	require.Error(t, err)
	assert.True(t, apperrors.IsIngestion(err))
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDocumentStore_ReadFailureIsIngestionError(t *testing.T) {
	store, err := NewDocumentStore(DocumentStoreOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Save(context.Background(), failingReader{})
	require.Error(t, err)
	assert.True(t, apperrors.IsIngestion(err))
	assert.Contains(t, err.Error(), "Error processing financial document")
}

func TestDocumentStore_PathRejectsEscapes(t *testing.T) {
	store, err := NewDocumentStore(DocumentStoreOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	for _, h := range []string{"", "../etc/passwd", "a/b.pdf", ".hidden"} {
		_, pathErr := store.Path(h)
		assert.Error(t, pathErr, "handle %q", h)
		assert.False(t, store.Exists(h))
	}
}

func TestResultStore_WriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewResultStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "job-1", "report"))
	require.NoError(t, store.Write(ctx, "job-1", "report"))

	data, err := os.ReadFile(filepath.Join(dir, "job-1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "report", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestResultStore_RejectsBadJobID(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Write(context.Background(), "../x", "r"))
	assert.Error(t, store.Write(context.Background(), "", "r"))
}
