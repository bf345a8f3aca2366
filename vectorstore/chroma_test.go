package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChroma stands in for a Chroma server. Only the calls the index makes
// are implemented; anything else panics on the nil embedded interface.
type fakeChroma struct {
	chromago.Client

	mu          sync.Mutex
	collections map[string]*fakeCollection
	created     []string
	deleted     []string
	failAdd     bool
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{collections: map[string]*fakeCollection{}}
}

func (f *fakeChroma) CreateCollection(_ context.Context, name string, _ ...chromago.CreateCollectionOption) (chromago.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col := &fakeCollection{name: name, failAdd: f.failAdd}
	f.collections[name] = col
	f.created = append(f.created, name)
	return col, nil
}

func (f *fakeChroma) GetCollection(_ context.Context, name string, _ ...chromago.GetCollectionOption) (chromago.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	return col, nil
}

func (f *fakeChroma) DeleteCollection(_ context.Context, name string, _ ...chromago.DeleteCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeCollection struct {
	chromago.Collection

	name    string
	failAdd bool
	added   int
	result  chromago.QueryResult
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) Add(_ context.Context, _ ...chromago.CollectionAddOption) error {
	if c.failAdd {
		return errors.New("chroma: internal server error")
	}
	c.added++
	return nil
}

func (c *fakeCollection) Count(context.Context) (int, error) { return c.added, nil }

func (c *fakeCollection) Query(context.Context, ...chromago.CollectionQueryOption) (chromago.QueryResult, error) {
	return c.result, nil
}

type fakeQueryResult struct {
	chromago.QueryResult

	documents chromago.Documents
	metadatas chromago.DocumentMetadatas
	distances embeddings.Distances
}

func (r *fakeQueryResult) GetDocumentsGroups() []chromago.Documents { return []chromago.Documents{r.documents} }

func (r *fakeQueryResult) GetMetadatasGroups() []chromago.DocumentMetadatas {
	return []chromago.DocumentMetadatas{r.metadatas}
}

func (r *fakeQueryResult) GetDistancesGroups() []embeddings.Distances {
	return []embeddings.Distances{r.distances}
}

type fakeDocument struct {
	chromago.Document
	text string
}

func (d fakeDocument) ContentString() string { return d.text }

func servingCollection(t *testing.T, idx *ChromaIndex) *fakeCollection {
	t.Helper()
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	require.NotNil(t, idx.collection)
	col, ok := idx.collection.(*fakeCollection)
	require.True(t, ok)
	return col
}

func TestChromaIndex_BuildSwapsInNewCollection(t *testing.T) {
	client := newFakeChroma()
	idx := NewChromaIndex(client, axisEmbedder(), "minirag")
	ctx := context.Background()

	require.NoError(t, idx.Build(ctx, testChunks("alpha", "beta")))
	assert.True(t, idx.Ready())
	assert.Equal(t, 2, idx.Len())
	require.Len(t, client.created, 1)
	assert.Contains(t, client.created[0], "minirag-")
	assert.Empty(t, client.deleted)
	first := client.created[0]

	require.NoError(t, idx.Build(ctx, testChunks("gamma")))
	assert.Equal(t, 1, idx.Len())
	require.Len(t, client.created, 2)
	assert.Equal(t, []string{first}, client.deleted)
	assert.Equal(t, client.created[1], servingCollection(t, idx).Name())
}

func TestChromaIndex_FailedAddKeepsPreviousCollection(t *testing.T) {
	client := newFakeChroma()
	idx := NewChromaIndex(client, axisEmbedder(), "minirag")
	ctx := context.Background()

	require.NoError(t, idx.Build(ctx, testChunks("alpha", "beta")))
	serving := client.created[0]

	client.failAdd = true
	err := idx.Build(ctx, testChunks("gamma"))
	require.Error(t, err)

	require.Len(t, client.created, 2)
	assert.Equal(t, []string{client.created[1]}, client.deleted, "the half-built collection is dropped")
	assert.Equal(t, serving, servingCollection(t, idx).Name())
	assert.Equal(t, 2, idx.Len())
}

func TestChromaIndex_FailedEmbeddingCreatesNothing(t *testing.T) {
	client := newFakeChroma()
	e := axisEmbedder()
	e.failOn = "beta"
	idx := NewChromaIndex(client, e, "minirag")

	err := idx.Build(context.Background(), testChunks("alpha", "beta"))
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Chunk)
	assert.Empty(t, client.created)
	assert.False(t, idx.Ready())
}

func TestChromaIndex_QueryMapsResults(t *testing.T) {
	client := newFakeChroma()
	idx := NewChromaIndex(client, axisEmbedder(), "minirag")
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx, testChunks("alpha", "gamma")))

	servingCollection(t, idx).result = &fakeQueryResult{
		documents: chromago.Documents{fakeDocument{text: "alpha"}, fakeDocument{text: ""}, fakeDocument{text: "gamma"}},
		metadatas: chromago.DocumentMetadatas{
			chromago.NewDocumentMetadata(
				chromago.NewStringAttribute("chunk_id", "c0"),
				chromago.NewStringAttribute("source_file", "doc.pdf"),
				chromago.NewIntAttribute("page", 1),
				chromago.NewIntAttribute("chunk_num", 0),
				chromago.NewIntAttribute("offset", 0),
			),
			nil,
			chromago.NewDocumentMetadata(
				chromago.NewStringAttribute("chunk_id", "c1"),
				chromago.NewIntAttribute("page", 2),
				chromago.NewIntAttribute("chunk_num", 1),
				chromago.NewIntAttribute("offset", 400),
			),
		},
		distances: embeddings.Distances{0.01, 0.5, 0.02},
	}

	results, err := idx.Query(ctx, "near alpha", 3)
	require.NoError(t, err)
	require.Len(t, results, 2, "empty documents are skipped")

	assert.Equal(t, "alpha", results[0].Chunk.Text)
	assert.Equal(t, "c0", results[0].Chunk.ID)
	assert.Equal(t, "doc.pdf", results[0].Chunk.Source)
	assert.InDelta(t, 0.01, results[0].Distance, 1e-6)

	assert.Equal(t, "gamma", results[1].Chunk.Text)
	assert.Equal(t, 2, results[1].Chunk.Page)
	assert.Equal(t, 400, results[1].Chunk.Offset)
	assert.InDelta(t, 0.02, results[1].Distance, 1e-6)
}

func TestChromaIndex_SaveAndLoad(t *testing.T) {
	client := newFakeChroma()
	ctx := context.Background()
	dir := t.TempDir()

	built := NewChromaIndex(client, axisEmbedder(), "minirag")
	require.NoError(t, built.Build(ctx, testChunks("alpha", "beta", "gamma")))
	require.NoError(t, built.Save(ctx, dir))

	loaded := NewChromaIndex(client, axisEmbedder(), "minirag")
	require.NoError(t, loaded.Load(ctx, dir))
	assert.True(t, loaded.Ready())
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, client.created[0], servingCollection(t, loaded).Name())
}

func TestChromaIndex_LoadRejectsMissingOrEmptyCollection(t *testing.T) {
	ctx := context.Background()
	writeManifest := func(t *testing.T, name string) string {
		t.Helper()
		dir := t.TempDir()
		data, err := json.Marshal(chromaManifest{Collection: name, Embedder: "fake", Dimension: 3, Count: 1})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o644))
		return dir
	}

	t.Run("missing", func(t *testing.T) {
		idx := NewChromaIndex(newFakeChroma(), axisEmbedder(), "minirag")
		err := idx.Load(ctx, writeManifest(t, "minirag-gone"))
		assert.ErrorIs(t, err, ErrInvalidIndex)
		assert.False(t, idx.Ready())
	})

	t.Run("empty", func(t *testing.T) {
		client := newFakeChroma()
		_, err := client.CreateCollection(ctx, "minirag-empty")
		require.NoError(t, err)

		idx := NewChromaIndex(client, axisEmbedder(), "minirag")
		err = idx.Load(ctx, writeManifest(t, "minirag-empty"))
		assert.ErrorIs(t, err, ErrInvalidIndex)
		assert.False(t, idx.Ready())
	})

	t.Run("failed load keeps current collection", func(t *testing.T) {
		client := newFakeChroma()
		idx := NewChromaIndex(client, axisEmbedder(), "minirag")
		require.NoError(t, idx.Build(ctx, testChunks("alpha")))

		err := idx.Load(ctx, writeManifest(t, "minirag-gone"))
		assert.ErrorIs(t, err, ErrInvalidIndex)
		assert.True(t, idx.Ready())
		assert.Equal(t, client.created[0], servingCollection(t, idx).Name())
	})
}

func TestChromaIndex_Clear(t *testing.T) {
	client := newFakeChroma()
	idx := NewChromaIndex(client, axisEmbedder(), "minirag")
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx, testChunks("alpha")))

	require.NoError(t, idx.Clear(ctx))
	assert.False(t, idx.Ready())
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, client.created, client.deleted)

	_, err := idx.Query(ctx, "alpha", 1)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestChromaIndex_EmptyState(t *testing.T) {
	idx := NewChromaIndex(nil, newFakeEmbedder(3), "test")

	assert.False(t, idx.Ready())
	assert.Equal(t, 0, idx.Len())
	_, err := idx.Query(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, idx.Save(context.Background(), t.TempDir()), ErrIndexUnavailable)
	assert.NoError(t, idx.Clear(context.Background()))
}

func TestReadManifest(t *testing.T) {
	write := func(t *testing.T, v any) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), ManifestFileName)
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}

	t.Run("valid", func(t *testing.T) {
		path := write(t, chromaManifest{Collection: "minirag-1", Embedder: "fake", Dimension: 3, Count: 4})
		m, err := readManifest(path, 3)
		require.NoError(t, err)
		assert.Equal(t, "minirag-1", m.Collection)
		assert.Equal(t, 4, m.Count)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		path := write(t, chromaManifest{Collection: "minirag-1", Dimension: 768})
		_, err := readManifest(path, 384)
		assert.ErrorIs(t, err, ErrInvalidIndex)
	})

	t.Run("no collection", func(t *testing.T) {
		path := write(t, chromaManifest{Dimension: 3})
		_, err := readManifest(path, 3)
		assert.ErrorIs(t, err, ErrInvalidIndex)
	})

	t.Run("not json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ManifestFileName)
		require.NoError(t, os.WriteFile(path, []byte("{{"), 0o644))
		_, err := readManifest(path, 3)
		assert.ErrorIs(t, err, ErrInvalidIndex)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := readManifest(filepath.Join(t.TempDir(), ManifestFileName), 3)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestChunkFromMetadata(t *testing.T) {
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(
		`{"chunk_id":"abc","source_file":"uploads/a.pdf","page":2,"chunk_num":5,"offset":2000}`), &meta))

	chunk := chunkFromMetadata("window text", meta)
	assert.Equal(t, "abc", chunk.ID)
	assert.Equal(t, "uploads/a.pdf", chunk.Source)
	assert.Equal(t, 2, chunk.Page)
	assert.Equal(t, 5, chunk.Index)
	assert.Equal(t, 2000, chunk.Offset)
	assert.Equal(t, "window text", chunk.Text)

	bare := chunkFromMetadata("only text", nil)
	assert.Equal(t, "only text", bare.Text)
	assert.Empty(t, bare.ID)
}
