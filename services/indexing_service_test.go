package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanAndImportDirectory(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &hashEmbedder{dim: fakeDim}, &recordingGenerator{})
	importer := NewFileIndexingService(svc, store, 1000, 100)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "monday.txt"), "Call the plumber about the leak.")
	writeFile(t, filepath.Join(dir, "sub", "ideas.md"), "# Ideas\n\nA bike rack for the garage.")
	writeFile(t, filepath.Join(dir, "empty.txt"), "   \n")
	writeFile(t, filepath.Join(dir, "photo.jpg"), "not text")

	result, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Files: 3, Skipped: 1, Notes: 2}, result)

	notes, err := store.List(ctx, NotesNamespace)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	sources := map[string]string{}
	for _, n := range notes {
		assert.Len(t, n.Metadata.SourceHash, 64)
		sources[filepath.Base(n.Metadata.Source)] = n.Metadata.Text
	}
	assert.Equal(t, "Call the plumber about the leak.", sources["monday.txt"])
	assert.Contains(t, sources["ideas.md"], "bike rack")

	// Unchanged files are not imported twice.
	again, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Notes)
	assert.Equal(t, 3, again.Skipped)

	// An edited file is imported as new notes and the old ones stay.
	writeFile(t, filepath.Join(dir, "monday.txt"), "Plumber is booked for Tuesday.")
	edited, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, edited.Notes)

	count, err := store.Count(ctx, NotesNamespace)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestImportSplitsLongFiles(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &hashEmbedder{dim: fakeDim}, &recordingGenerator{})
	importer := NewFileIndexingService(svc, store, 50, 0)

	dir := t.TempDir()
	paragraphs := []string{
		"The first paragraph talks about groceries.",
		"The second paragraph covers the dentist.",
		"The third paragraph is about the car.",
	}
	writeFile(t, filepath.Join(dir, "long.txt"), strings.Join(paragraphs, "\n\n"))

	result, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Greater(t, result.Notes, 1)

	notes, err := store.List(ctx, NotesNamespace)
	require.NoError(t, err)
	require.Len(t, notes, result.Notes)
	for i, n := range notes {
		assert.LessOrEqual(t, len(n.Metadata.Text), 50)
		assert.Equal(t, filepath.Join(dir, "long.txt"), n.Metadata.Source)
		if i == len(notes)-1 {
			assert.Len(t, n.Metadata.SourceHash, 64)
		} else {
			assert.Empty(t, n.Metadata.SourceHash)
		}
	}
}

// flakyEmbedder fails on its failOn-th call and otherwise behaves like hashEmbedder.
type flakyEmbedder struct {
	hashEmbedder
	failOn int
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.calls+1 == e.failOn {
		e.calls++
		return nil, errors.New("embedding service unavailable")
	}
	return e.hashEmbedder.Embed(ctx, text)
}

func TestPartialImportIsRetried(t *testing.T) {
	ctx := context.Background()
	embedder := &flakyEmbedder{hashEmbedder: hashEmbedder{dim: fakeDim}, failOn: 2}
	svc, store := newTestService(t, embedder, &recordingGenerator{})
	importer := NewFileIndexingService(svc, store, 50, 0)

	dir := t.TempDir()
	paragraphs := []string{
		"The first paragraph talks about groceries.",
		"The second paragraph covers the dentist.",
		"The third paragraph is about the car.",
	}
	writeFile(t, filepath.Join(dir, "long.txt"), strings.Join(paragraphs, "\n\n"))

	result, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Files: 1, Failed: 1, Notes: 1}, result)

	embedder.failOn = 0
	retry, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Files: 1, Notes: 3}, retry)

	notes, err := store.List(ctx, NotesNamespace)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	var texts []string
	for _, n := range notes {
		texts = append(texts, n.Metadata.Text)
	}
	assert.ElementsMatch(t, paragraphs, texts)

	again, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Files: 1, Skipped: 1}, again)
}

func TestWatchDirectoryWaitsForWritesToSettle(t *testing.T) {
	svc, store := newTestService(t, &hashEmbedder{dim: fakeDim}, &recordingGenerator{})
	importer := NewFileIndexingService(svc, store, 1000, 100)
	importer.quietPeriod = 100 * time.Millisecond

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- importer.WatchDirectory(ctx, dir) }()
	defer func() {
		cancel()
		assert.NoError(t, <-errCh)
	}()
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(dir, "memo.txt")
	writeFile(t, path, "Pick up the ")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("kids at five.")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	writeFile(t, filepath.Join(dir, "ignored.jpg"), "binary")

	require.Eventually(t, func() bool {
		count, err := store.Count(context.Background(), NotesNamespace)
		return err == nil && count > 0
	}, 3*time.Second, 20*time.Millisecond)

	// Give a second import the chance to show up.
	time.Sleep(300 * time.Millisecond)
	notes, err := store.List(context.Background(), NotesNamespace)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Pick up the kids at five.", notes[0].Metadata.Text)
	assert.Equal(t, path, notes[0].Metadata.Source)
}

func TestImportCountsFailedFiles(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &hashEmbedder{dim: fakeDim}, &recordingGenerator{})
	importer := NewFileIndexingService(svc, store, 1000, 100)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.txt"), "A valid note.")
	writeFile(t, filepath.Join(dir, "broken.pdf"), "this is not a pdf")

	result, err := importer.ScanAndImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Notes)
}

func TestImportMissingDirectory(t *testing.T) {
	svc, store := newTestService(t, &hashEmbedder{dim: fakeDim}, &recordingGenerator{})
	importer := NewFileIndexingService(svc, store, 1000, 100)

	_, err := importer.ScanAndImportDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsSupportedFile(t *testing.T) {
	assert.True(t, isSupportedFile("a/b/notes.TXT"))
	assert.True(t, isSupportedFile("readme.md"))
	assert.True(t, isSupportedFile("scan.pdf"))
	assert.False(t, isSupportedFile("voice.m4a"))
	assert.False(t, isSupportedFile("noext"))
}
