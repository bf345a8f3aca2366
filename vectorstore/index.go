// Package vectorstore holds the vector index that backs retrieval. An index
// is a single owned slot: empty, or populated by one successful build or
// load. Writers are serialized and a failed write never disturbs the
// current contents.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/itish2003/minirag/models"
)

var (
	// ErrIndexUnavailable is returned when querying or saving an empty index.
	ErrIndexUnavailable = errors.New("vector index is not built or loaded")
	// ErrInvalidIndex is returned when persisted contents cannot be used.
	ErrInvalidIndex = errors.New("invalid vector index")
	// ErrNoChunks is returned when a build is attempted with nothing to embed.
	ErrNoChunks = errors.New("no chunks to index")
	// ErrDimensionMismatch is returned when an embedding has the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// Index is a nearest-neighbour store of chunk embeddings.
type Index interface {
	// Build embeds every chunk and replaces the contents of the index.
	Build(ctx context.Context, chunks []models.Chunk) error
	// Query returns at most k chunks ordered by ascending distance to text.
	Query(ctx context.Context, text string, k int) ([]Result, error)
	// Save persists the index into dir.
	Save(ctx context.Context, dir string) error
	// Load replaces the contents of the index with what is stored in dir.
	Load(ctx context.Context, dir string) error
	// Clear empties the index.
	Clear(ctx context.Context) error
	Ready() bool
	Len() int
}

// Entry pairs a chunk with its embedding.
type Entry struct {
	Chunk  models.Chunk `json:"chunk"`
	Vector []float32    `json:"vector"`
}

// Result is a retrieved chunk and its distance to the query.
type Result struct {
	Chunk    models.Chunk
	Distance float64
}

// BuildError reports which chunk stopped a build.
type BuildError struct {
	Chunk int
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("could not embed chunk %d: %v", e.Chunk, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// embedChunks embeds chunks in order, stopping at the first failure.
func embedChunks(ctx context.Context, e Embedder, chunks []models.Chunk) ([]Entry, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	dim := e.Dimension()
	entries := make([]Entry, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vector, err := e.Embed(ctx, chunk.Text)
		if err != nil {
			return nil, &BuildError{Chunk: i, Err: err}
		}
		if len(vector) != dim {
			return nil, &BuildError{
				Chunk: i,
				Err:   fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim),
			}
		}
		entries = append(entries, Entry{Chunk: chunk, Vector: vector})
	}
	return entries, nil
}
