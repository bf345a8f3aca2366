package models

// OllamaEmbedRequest is the body of POST /api/embed.
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	// Truncate lets the server cut inputs longer than the model context.
	Truncate bool `json:"truncate"`
}

// OllamaEmbedResponse holds one embedding per input, in order.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaError is the body Ollama sends with non-200 statuses.
type OllamaError struct {
	Error string `json:"error"`
}
