package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/itish2003/minirag/config"
)

// Completer is the text-completion capability of the hosted model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// ListModels returns the models that can serve Complete.
	ListModels(ctx context.Context) ([]string, error)
}

// NewCompleter builds the completer named by cfg.Completer.
func NewCompleter(cfg *config.Config, httpClient *http.Client, geminiClient *genai.Client) (Completer, error) {
	switch cfg.Completer {
	case "gemini":
		if geminiClient == nil {
			return nil, fmt.Errorf("gemini completer needs GEMINI_API_KEY")
		}
		return NewGeminiCompleter(geminiClient, cfg.GeminiModel), nil
	case "openai":
		return NewOpenAICompleter(newOpenAIClient(cfg, httpClient), cfg.OpenAIModel), nil
	}
	return nil, fmt.Errorf("unknown completer %q", cfg.Completer)
}

// NewGeminiClient creates a Gemini API client, or returns nil when apiKey is empty.
func NewGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*genai.Client, error) {
	if apiKey == "" {
		return nil, nil
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
}

// GeminiCompleter sends single-turn prompts to a Gemini model.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

func NewGeminiCompleter(client *genai.Client, model string) *GeminiCompleter {
	return &GeminiCompleter{client: client, model: model}
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

// ListModels returns the models that support generateContent.
func (g *GeminiCompleter) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list gemini models: %w", err)
		}
		for _, action := range m.SupportedActions {
			if action == "generateContent" {
				names = append(names, m.Name)
				break
			}
		}
	}
	return names, nil
}

// OpenAICompleter sends single-turn prompts to an OpenAI-compatible chat API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	return &OpenAICompleter{client: client, model: model}
}

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai api call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAICompleter) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list openai models: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
