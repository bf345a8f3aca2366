package vectorstore

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/minirag/models"
)

// LocalIndex is an in-memory brute-force index using Euclidean distance.
// It persists to a single bbolt file inside the index directory.
type LocalIndex struct {
	embedder Embedder

	// writeMu serializes Build, Load and Clear end to end.
	writeMu sync.Mutex

	mu      sync.RWMutex
	entries []Entry
}

// NewLocalIndex creates an empty index that embeds with e.
func NewLocalIndex(e Embedder) *LocalIndex {
	return &LocalIndex{embedder: e}
}

func (l *LocalIndex) Build(ctx context.Context, chunks []models.Chunk) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	entries, err := embedChunks(ctx, l.embedder, chunks)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{"entries": len(entries), "embedder": l.embedder.Name()}).
		Info("INDEXER: local index built")
	return nil
}

func (l *LocalIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	entries := l.snapshot()
	if len(entries) == 0 {
		return nil, ErrIndexUnavailable
	}

	query, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("could not embed query: %w", err)
	}
	if len(query) != l.embedder.Dimension() {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), l.embedder.Dimension())
	}
	return search(entries, query, k), nil
}

func (l *LocalIndex) Save(_ context.Context, dir string) error {
	entries := l.snapshot()
	if len(entries) == 0 {
		return ErrIndexUnavailable
	}
	return writeIndexFile(dir, l.embedder.Name(), l.embedder.Dimension(), entries)
}

func (l *LocalIndex) Load(_ context.Context, dir string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	entries, err := readIndexFile(filepath.Join(dir, IndexFileName), l.embedder.Dimension())
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{"entries": len(entries), "dir": dir}).Info("INDEXER: local index loaded")
	return nil
}

func (l *LocalIndex) Clear(_ context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	return nil
}

func (l *LocalIndex) Ready() bool { return l.Len() > 0 }

func (l *LocalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// snapshot returns the current entries. The slice is replaced, never
// mutated, so callers may read it without holding the lock.
func (l *LocalIndex) snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries
}

// search ranks entries by ascending distance. Ties keep insertion order.
func search(entries []Entry, query []float32, k int) []Result {
	results := make([]Result, len(entries))
	for i, e := range entries {
		results[i] = Result{Chunk: e.Chunk, Distance: l2Distance(query, e.Vector)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
