package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/minirag/config"
	"github.com/itish2003/minirag/services"
	"github.com/itish2003/minirag/vectorstore"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	rag     services.RAGService
	closers []func() error
}

// newApp builds clients, the embedder, the index and the RAG service from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	geminiClient, err := services.NewGeminiClient(ctx, cfg.GeminiAPIKey, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	embedder, closeEmbedder, err := services.NewEmbedder(cfg, httpClient, geminiClient)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeEmbedder)

	completer, err := services.NewCompleter(cfg, httpClient, geminiClient)
	if err != nil {
		a.Close()
		return nil, err
	}

	chunker, err := services.NewChunker(cfg.ChunkStrategy, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	index, err := a.newIndex(cfg, embedder)
	if err != nil {
		a.Close()
		return nil, err
	}

	uploads, err := services.NewUploadStore(cfg.UploadDir, cfg.VectorDBDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.rag = services.NewRAGService(index, chunker, completer, uploads, cfg.TopK)
	logrus.WithFields(logrus.Fields{
		"embedder":     embedder.Name(),
		"vector_store": cfg.VectorStore,
		"completer":    cfg.Completer,
	}).Debug("APP: services ready")
	return a, nil
}

func (a *app) newIndex(cfg *config.Config, embedder services.Embedder) (vectorstore.Index, error) {
	if cfg.VectorStore != "chroma" {
		return vectorstore.NewLocalIndex(embedder), nil
	}
	chromaClient, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.ChromaURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	a.closers = append(a.closers, chromaClient.Close)
	return vectorstore.NewChromaIndex(chromaClient, embedder, cfg.ChromaCollection), nil
}

// Close releases every resource opened by newApp.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openApp builds the app and restores the persisted index.
func openApp(ctx context.Context) (*app, error) {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.rag.LoadIndex(ctx); err != nil {
		if services.KindOf(err) == services.KindIndexUnavailable {
			logrus.Info("APP: no persisted vector index, starting empty")
		} else {
			logrus.WithError(err).Warn("APP: could not load persisted vector index, starting empty")
		}
	}
	return a, nil
}
