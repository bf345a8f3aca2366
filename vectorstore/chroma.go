package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/minirag/models"
)

// ManifestFileName records which Chroma collection an index directory refers to.
const ManifestFileName = "chroma.json"

// chromaManifest is the on-disk pointer to a server-side collection.
type chromaManifest struct {
	Collection string `json:"collection"`
	Embedder   string `json:"embedder"`
	Dimension  int    `json:"dimension"`
	Count      int    `json:"count"`
}

// ChromaIndex keeps entries in a Chroma collection. Every build writes a new
// collection and swaps it in only after all entries were added, so a failed
// build leaves the previous collection serving queries.
type ChromaIndex struct {
	client   chromago.Client
	embedder Embedder
	prefix   string

	writeMu sync.Mutex

	mu         sync.RWMutex
	collection chromago.Collection
	count      int
}

// NewChromaIndex creates an empty index whose collections are named prefix-<id>.
func NewChromaIndex(client chromago.Client, e Embedder, prefix string) *ChromaIndex {
	return &ChromaIndex{client: client, embedder: e, prefix: prefix}
}

func (c *ChromaIndex) Build(ctx context.Context, chunks []models.Chunk) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	entries, err := embedChunks(ctx, c.embedder, chunks)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s-%s", c.prefix, uuid.New().String())
	collection, err := c.client.CreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "minirag document index"),
				chromago.NewStringAttribute("embedder", c.embedder.Name()),
				chromago.NewIntAttribute("dimension", int64(c.embedder.Dimension())),
			),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create chroma collection: %w", err)
	}

	ids := make([]chromago.DocumentID, len(entries))
	texts := make([]string, len(entries))
	vectors := make([]embeddings.Embedding, len(entries))
	metadatas := make([]chromago.DocumentMetadata, len(entries))
	for i, e := range entries {
		ids[i] = chromago.DocumentID(e.Chunk.ID)
		texts[i] = e.Chunk.Text
		vectors[i] = embeddings.NewEmbeddingFromFloat32(e.Vector)
		metadatas[i] = chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("chunk_id", e.Chunk.ID),
			chromago.NewStringAttribute("source_file", e.Chunk.Source),
			chromago.NewIntAttribute("page", int64(e.Chunk.Page)),
			chromago.NewIntAttribute("chunk_num", int64(e.Chunk.Index)),
			chromago.NewIntAttribute("offset", int64(e.Chunk.Offset)),
		)
	}

	err = collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metadatas...),
	)
	if err != nil {
		c.dropCollection(ctx, name)
		return fmt.Errorf("failed to add chunks to chromadb: %w", err)
	}

	previous := c.swap(collection, len(entries))
	if previous != nil && previous.Name() != name {
		c.dropCollection(ctx, previous.Name())
	}

	logrus.WithFields(logrus.Fields{"collection": name, "entries": len(entries)}).
		Info("INDEXER: chroma index built")
	return nil
}

func (c *ChromaIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	c.mu.RLock()
	collection := c.collection
	c.mu.RUnlock()
	if collection == nil {
		return nil, ErrIndexUnavailable
	}

	query, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("could not embed query: %w", err)
	}

	results, err := collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	var out []Result
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(documentGroups) == 0 {
		return out, nil
	}
	for i, doc := range documentGroups[0] {
		if doc == nil || doc.ContentString() == "" {
			continue
		}
		var meta map[string]interface{}
		if len(metadataGroups) > 0 && len(metadataGroups[0]) > i && metadataGroups[0][i] != nil {
			// DocumentMetadata has no public accessor for all values;
			// a JSON round trip turns it into a plain map.
			if data, err := json.Marshal(metadataGroups[0][i]); err == nil {
				_ = json.Unmarshal(data, &meta)
			}
		}
		distance := float64(i)
		if len(distanceGroups) > 0 && len(distanceGroups[0]) > i {
			distance = float64(distanceGroups[0][i])
		}
		out = append(out, Result{Chunk: chunkFromMetadata(doc.ContentString(), meta), Distance: distance})
	}
	return out, nil
}

func (c *ChromaIndex) Save(_ context.Context, dir string) error {
	c.mu.RLock()
	collection, count := c.collection, c.count
	c.mu.RUnlock()
	if collection == nil {
		return ErrIndexUnavailable
	}

	data, err := json.MarshalIndent(chromaManifest{
		Collection: collection.Name(),
		Embedder:   c.embedder.Name(),
		Dimension:  c.embedder.Dimension(),
		Count:      count,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create index directory %s: %w", dir, err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o644)
}

func (c *ChromaIndex) Load(ctx context.Context, dir string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	manifest, err := readManifest(filepath.Join(dir, ManifestFileName), c.embedder.Dimension())
	if err != nil {
		return err
	}
	collection, err := c.client.GetCollection(ctx, manifest.Collection)
	if err != nil {
		return fmt.Errorf("%w: collection %s: %v", ErrInvalidIndex, manifest.Collection, err)
	}
	count, err := collection.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count collection %s: %w", manifest.Collection, err)
	}
	if int(count) == 0 {
		return fmt.Errorf("%w: collection %s is empty", ErrInvalidIndex, manifest.Collection)
	}

	c.swap(collection, int(count))
	logrus.WithField("collection", manifest.Collection).Info("INDEXER: chroma index loaded")
	return nil
}

func (c *ChromaIndex) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	previous := c.swap(nil, 0)
	if previous != nil {
		return c.client.DeleteCollection(ctx, previous.Name())
	}
	return nil
}

func (c *ChromaIndex) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection != nil
}

func (c *ChromaIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

func (c *ChromaIndex) swap(collection chromago.Collection, count int) chromago.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.collection
	c.collection, c.count = collection, count
	return previous
}

func (c *ChromaIndex) dropCollection(ctx context.Context, name string) {
	if err := c.client.DeleteCollection(ctx, name); err != nil {
		logrus.WithError(err).WithField("collection", name).Warn("INDEXER: could not drop chroma collection")
	}
}

func readManifest(path string, wantDim int) (*chromaManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read index manifest %s: %w", path, err)
	}
	var m chromaManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if m.Collection == "" {
		return nil, fmt.Errorf("%w: manifest names no collection", ErrInvalidIndex)
	}
	if m.Dimension != wantDim {
		return nil, fmt.Errorf("%w: stored dimension %d, configured %d", ErrInvalidIndex, m.Dimension, wantDim)
	}
	return &m, nil
}

// chunkFromMetadata rebuilds a chunk from JSON-decoded Chroma metadata,
// where numbers arrive as float64.
func chunkFromMetadata(text string, meta map[string]interface{}) models.Chunk {
	chunk := models.Chunk{Text: text}
	if meta == nil {
		return chunk
	}
	chunk.ID, _ = meta["chunk_id"].(string)
	chunk.Source, _ = meta["source_file"].(string)
	chunk.Page = intValue(meta["page"])
	chunk.Index = intValue(meta["chunk_num"])
	chunk.Offset = intValue(meta["offset"])
	return chunk
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

var _ Index = (*ChromaIndex)(nil)
var _ Index = (*LocalIndex)(nil)
