package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/minirag/models"
)

// ingestRecorder implements only IngestFile and IndexedFile; other
// RAGService methods panic.
type ingestRecorder struct {
	RAGService

	mu      sync.Mutex
	paths   []string
	err     error
	indexed models.IndexedFile
}

func (r *ingestRecorder) IngestFile(_ context.Context, path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.err != nil {
		return 0, r.err
	}
	hash, _ := calculateFileHash(path)
	r.indexed = models.IndexedFile{Path: path, Hash: hash}
	return 1, nil
}

func (r *ingestRecorder) IndexedFile() models.IndexedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexed
}

func (r *ingestRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func (r *ingestRecorder) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func TestInboxWatcher_SkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	w := NewInboxWatcher(dir, rec, time.Millisecond)
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w.ingest(context.Background(), path)
	w.ingest(context.Background(), path)
	assert.Equal(t, 1, rec.calls())

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	w.ingest(context.Background(), path)
	assert.Equal(t, 2, rec.calls())
}

func TestInboxWatcher_ReindexesAfterClearAndReplace(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()
	w := NewInboxWatcher(f.root, f.svc, time.Millisecond)
	doc := f.writeText(t, "doc.txt", sampleText)

	w.ingest(ctx, doc)
	require.True(t, f.index.Ready())

	require.NoError(t, f.svc.Clear(ctx))
	require.False(t, f.index.Ready())

	w.ingest(ctx, doc)
	assert.True(t, f.index.Ready(), "file dropped again after clear must be indexed")

	other := f.writeText(t, "other.txt", "Quantum cats and dogs share a box of quarks.")
	_, err := f.svc.IngestFile(ctx, other)
	require.NoError(t, err)

	w.ingest(ctx, doc)
	assert.Equal(t, doc, f.svc.IndexedFile().Path)

	resp, err := f.svc.AskWithContext(ctx, models.AskWithContextRequest{Message: "Zebras live in Africa"})
	require.NoError(t, err)
	require.True(t, resp.ContextUsed)
	assert.NotContains(t, f.completer.lastPrompt(), "Quantum")
}

func TestInboxWatcher_FiredTimerKeepsReplacement(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	w := NewInboxWatcher(dir, rec, time.Millisecond)
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	ctx := context.Background()

	w.schedule(ctx, path)

	// Let the first timer fire while its callback waits for the lock, then
	// replace it the way a new event would.
	w.mu.Lock()
	time.Sleep(50 * time.Millisecond)
	w.settle = time.Hour
	w.scheduleLocked(ctx, path)
	replacement := w.pending[path]
	w.mu.Unlock()

	require.Eventually(t, func() bool { return rec.calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	w.mu.Lock()
	current := w.pending[path]
	w.mu.Unlock()
	assert.Same(t, replacement, current)

	w.stopPending()
	assert.Equal(t, 1, rec.calls())
}

func TestInboxWatcher_RetriesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{err: errors.New("boom")}
	w := NewInboxWatcher(dir, rec, time.Millisecond)
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w.ingest(context.Background(), path)
	rec.setErr(nil)
	w.ingest(context.Background(), path)
	assert.Equal(t, 2, rec.calls())
}

func TestInboxWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	w := NewInboxWatcher(dir, rec, 50*time.Millisecond)
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.schedule(ctx, path)
	}
	require.Eventually(t, func() bool { return rec.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	w.stopPending()
	assert.Equal(t, 1, rec.calls())
}

func TestInboxWatcher_WatchIngestsNewPDFs(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	w := NewInboxWatcher(dir, rec, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	pdf := filepath.Join(dir, "report.pdf")
	txt := filepath.Join(dir, "notes.txt")
	// Keep writing until the watcher is registered and has picked the file up.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(txt, []byte("ignored"), 0o644)
		_ = os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644)
		return rec.calls() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, p := range rec.paths {
		assert.Equal(t, pdf, p)
	}
}
