package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/minirag/models"
	"github.com/itish2003/minirag/vectorstore"
)

// RAGService interface defines the operations behind the HTTP and CLI surfaces.
type RAGService interface {
	UploadPDF(c context.Context, filename string, r io.Reader) (*models.UploadResponse, error)
	IngestFile(c context.Context, path string) (int, error)
	Ask(c context.Context, req models.AskRequest) (string, error)
	AskWithContext(c context.Context, req models.AskWithContextRequest) (*models.AskResponse, error)
	Status() models.StatusResponse
	Clear(c context.Context) error
	ListModels(c context.Context) ([]string, error)
	LoadIndex(c context.Context) error
	// IndexedFile reports the file behind the current index, or the zero
	// value when the index is empty or was loaded from disk.
	IndexedFile() models.IndexedFile
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	index     vectorstore.Index
	chunker   Chunker
	completer Completer
	uploads   *UploadStore
	topK      int

	// mu serializes everything that rewrites the index or its directories.
	mu sync.Mutex

	fileMu  sync.RWMutex
	indexed models.IndexedFile
}

// NewRAGService creates a new RAG service instance
func NewRAGService(index vectorstore.Index, chunker Chunker, completer Completer, uploads *UploadStore, topK int) RAGService {
	if topK <= 0 {
		topK = 3
	}
	return &ragServiceImpl{
		index:     index,
		chunker:   chunker,
		completer: completer,
		uploads:   uploads,
		topK:      topK,
	}
}

// UploadPDF saves an uploaded PDF and rebuilds the index from it.
func (r *ragServiceImpl) UploadPDF(c context.Context, filename string, body io.Reader) (*models.UploadResponse, error) {
	if !IsPDF(filename) {
		return nil, newError(KindInputValidation, "", errors.New("Only PDF files are allowed"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.uploads.SavePDF(filename, body)
	if err != nil {
		return nil, newError(KindIO, "save upload", err)
	}
	if _, err := r.ingestLocked(c, path); err != nil {
		return nil, err
	}

	return &models.UploadResponse{
		Message: fmt.Sprintf("PDF %s processed successfully", filepath.Base(filename)),
		Success: true,
	}, nil
}

// IngestFile rebuilds the index from a file already on disk.
func (r *ragServiceImpl) IngestFile(c context.Context, path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ingestLocked(c, path)
}

// ingestLocked runs load → chunk → build → save. Callers hold r.mu.
func (r *ragServiceImpl) ingestLocked(c context.Context, path string) (int, error) {
	log := logrus.WithField("path", path)
	log.Info("SERVICE: processing document")

	doc, err := LoadDocument(path)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFile) {
			return 0, newError(KindInputValidation, "load document", err)
		}
		return 0, newError(KindIO, "load document", err)
	}

	chunks, err := r.chunker.Chunk(doc)
	if err != nil {
		return 0, newError(KindIO, "chunk document", err)
	}
	if len(chunks) == 0 {
		return 0, newError(KindInputValidation, "chunk document",
			fmt.Errorf("%s contains no extractable text", filepath.Base(path)))
	}
	log.WithField("chunks", len(chunks)).Info("SERVICE: document split into chunks")

	if err := r.index.Build(c, chunks); err != nil {
		return 0, newError(KindUpstream, "build index", err)
	}
	hash, err := calculateFileHash(path)
	if err != nil {
		log.WithError(err).Warn("SERVICE: could not hash indexed file")
	}
	r.setIndexed(models.IndexedFile{Path: path, Hash: hash})

	if err := r.index.Save(c, r.uploads.IndexDir); err != nil {
		return 0, newError(KindIO, "save index", err)
	}

	log.WithField("chunks", len(chunks)).Info("SERVICE: vector index saved")
	return len(chunks), nil
}

// Ask forwards the raw message to the completer.
func (r *ragServiceImpl) Ask(c context.Context, req models.AskRequest) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", newError(KindInputValidation, "", errors.New("message must not be empty"))
	}
	answer, err := r.completer.Complete(c, message)
	if err != nil {
		return "", newError(KindUpstream, "generate response", err)
	}
	return answer, nil
}

// AskWithContext answers using retrieved chunks when an index is available.
// A missing index is not an error: the question is sent without context.
func (r *ragServiceImpl) AskWithContext(c context.Context, req models.AskWithContextRequest) (*models.AskResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, newError(KindInputValidation, "", errors.New("message must not be empty"))
	}

	var contextText string
	if req.WantsContext() {
		texts, err := r.retrieve(c, message)
		if err != nil {
			return nil, err
		}
		contextText = joinContext(texts)
	}

	answer, err := r.completer.Complete(c, BuildPrompt(message, contextText))
	if err != nil {
		return nil, newError(KindUpstream, "generate response", err)
	}

	return &models.AskResponse{
		Response:      answer,
		ContextUsed:   contextText != "",
		ContextLength: utf8.RuneCountInString(contextText),
	}, nil
}

// retrieve returns the top-k chunk texts, or nothing when no index exists.
func (r *ragServiceImpl) retrieve(c context.Context, message string) ([]string, error) {
	if !r.index.Ready() {
		r.lazyLoad(c)
	}
	if !r.index.Ready() {
		logrus.Warn("SERVICE: context requested but no vector index is available, answering without context")
		return nil, nil
	}

	results, err := r.index.Query(c, message, r.topK)
	if errors.Is(err, vectorstore.ErrIndexUnavailable) {
		// Cleared between the readiness check and the query.
		logrus.Warn("SERVICE: vector index was cleared, answering without context")
		return nil, nil
	}
	if err != nil {
		return nil, newError(KindUpstream, "retrieve context", err)
	}

	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Chunk.Text)
	}
	logrus.WithField("chunks", len(texts)).Debug("SERVICE: retrieved context")
	return texts, nil
}

// lazyLoad restores a persisted index that was written after startup or by
// another process.
func (r *ragServiceImpl) lazyLoad(c context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index.Ready() || r.uploads.IndexDirEmpty() {
		return
	}
	if err := r.index.Load(c, r.uploads.IndexDir); err != nil {
		logrus.WithError(err).Debug("SERVICE: could not load persisted vector index")
		return
	}
	r.setIndexed(models.IndexedFile{})
}

// LoadIndex restores the persisted index. It fails with KindIndexUnavailable
// when nothing has been persisted yet.
func (r *ragServiceImpl) LoadIndex(c context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploads.IndexDirEmpty() {
		return newError(KindIndexUnavailable, "load index", vectorstore.ErrIndexUnavailable)
	}
	if err := r.index.Load(c, r.uploads.IndexDir); err != nil {
		return newError(KindIO, "load index", err)
	}
	r.setIndexed(models.IndexedFile{})
	return nil
}

func (r *ragServiceImpl) IndexedFile() models.IndexedFile {
	r.fileMu.RLock()
	defer r.fileMu.RUnlock()
	return r.indexed
}

func (r *ragServiceImpl) setIndexed(f models.IndexedFile) {
	r.fileMu.Lock()
	r.indexed = f
	r.fileMu.Unlock()
}

// Status reports whether an index is available for retrieval.
func (r *ragServiceImpl) Status() models.StatusResponse {
	has := r.uploads.IndexDirExists() && r.index.Ready()
	status := models.StatusResponse{HasVectorDB: has}
	if has {
		path := r.uploads.IndexDir
		status.VectorDBPath = &path
	}
	return status
}

// Clear empties the index and recreates the upload and index directories.
func (r *ragServiceImpl) Clear(c context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.index.Clear(c); err != nil {
		return newError(KindUpstream, "clear index", err)
	}
	r.setIndexed(models.IndexedFile{})
	if err := r.uploads.Reset(); err != nil {
		return newError(KindIO, "reset directories", err)
	}
	logrus.Info("SERVICE: vector database cleared")
	return nil
}

// ListModels returns the completion models available to the configured key.
func (r *ragServiceImpl) ListModels(c context.Context) ([]string, error) {
	names, err := r.completer.ListModels(c)
	if err != nil {
		return nil, newError(KindUpstream, "list models", err)
	}
	return names, nil
}
