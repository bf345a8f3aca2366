package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	defaultef "github.com/amikos-tech/chroma-go/pkg/embeddings/default_ef"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/itish2003/minirag/config"
	"github.com/itish2003/minirag/models"
	"github.com/itish2003/minirag/vectorstore"
)

// Embedder is the text-embedding capability used by the index.
type Embedder = vectorstore.Embedder

// NewEmbedder builds the embedder named by cfg.Embedder. The returned close
// function releases local model resources and is never nil.
func NewEmbedder(cfg *config.Config, httpClient *http.Client, geminiClient *genai.Client) (Embedder, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Embedder {
	case "local":
		local, closeFn, err := NewLocalEmbedder(cfg.EmbeddingDimension)
		if err != nil {
			return nil, noop, err
		}
		return local, closeFn, nil
	case "ollama":
		return NewOllamaEmbedder(httpClient, cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDimension), noop, nil
	case "gemini":
		if geminiClient == nil {
			return nil, noop, fmt.Errorf("gemini embedder needs GEMINI_API_KEY")
		}
		return NewGeminiEmbedder(geminiClient, cfg.EmbeddingModel, cfg.EmbeddingDimension), noop, nil
	case "openai":
		return NewOpenAIEmbedder(newOpenAIClient(cfg, httpClient), cfg.EmbeddingModel, cfg.EmbeddingDimension), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown embedder %q", cfg.Embedder)
}

// LocalEmbedder runs the all-MiniLM-L6-v2 sentence-transformer in-process
// through ONNX Runtime.
type LocalEmbedder struct {
	ef  embeddings.EmbeddingFunction
	dim int
}

// NewLocalEmbedder downloads the model on first use.
func NewLocalEmbedder(dim int) (*LocalEmbedder, func() error, error) {
	ef, closeEF, err := defaultef.NewDefaultEmbeddingFunction()
	if err != nil {
		return nil, func() error { return nil }, fmt.Errorf("could not start local embedding model: %w", err)
	}
	return &LocalEmbedder{ef: ef, dim: dim}, closeEF, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("local embedding failed: %w", err)
	}
	return emb.ContentAsFloat32(), nil
}

func (e *LocalEmbedder) Dimension() int { return e.dim }
func (e *LocalEmbedder) Name() string   { return "local/all-MiniLM-L6-v2" }

// OllamaEmbedder calls the Ollama embeddings endpoint.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dim        int
}

func NewOllamaEmbedder(httpClient *http.Client, baseURL, model string, dim int) *OllamaEmbedder {
	return &OllamaEmbedder{httpClient: httpClient, baseURL: baseURL, model: model, dim: dim}
}

// Embed generates embeddings using Ollama.
func (e *OllamaEmbedder) Embed(c context.Context, textToEmbed string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:    e.model,
		Input:    []string{textToEmbed},
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(c, http.MethodPost, strings.TrimRight(e.baseURL, "/")+"/api/embed", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var apiErr models.OllamaError
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("ollama api returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if len(ollamaResp.Embeddings) == 0 || len(ollamaResp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return ollamaResp.Embeddings[0], nil
}

func (e *OllamaEmbedder) Dimension() int { return e.dim }
func (e *OllamaEmbedder) Name() string   { return "ollama/" + e.model }

// GeminiEmbedder uses the Gemini embedContent API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGeminiEmbedder(client *genai.Client, model string, dim int) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model, dim: dim}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(e.dim)
	result, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini returned no embeddings")
	}
	return result.Embeddings[0].Values, nil
}

func (e *GeminiEmbedder) Dimension() int { return e.dim }
func (e *GeminiEmbedder) Name() string   { return "gemini/" + e.model }

// OpenAIEmbedder calls any OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

func NewOpenAIEmbedder(client *openai.Client, model string, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: openai.EmbeddingModel(model), dim: dim}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }
func (e *OpenAIEmbedder) Name() string   { return "openai/" + string(e.model) }

func newOpenAIClient(cfg *config.Config, httpClient *http.Client) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(clientCfg)
}
