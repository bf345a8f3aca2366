package models

// UploadResponse is returned by POST /upload-pdf on success.
type UploadResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// AskResponse is returned by POST /ask-with-context.
type AskResponse struct {
	Response      string `json:"response"`
	ContextUsed   bool   `json:"context_used"`
	ContextLength int    `json:"context_length"`
}

// ErrorPayload is returned with status 200 when the completion service fails.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is returned by GET /vectordb-status.
type StatusResponse struct {
	HasVectorDB  bool    `json:"has_vectordb"`
	VectorDBPath *string `json:"vectordb_path"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// DetailResponse carries a 4xx/5xx error message.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// ModelsResponse is returned by GET /models.
type ModelsResponse struct {
	Models []string `json:"models"`
}
