package models

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Message string `json:"message"`
}

// AskWithContextRequest is the body of POST /ask-with-context.
// UseContext defaults to true when the field is omitted.
type AskWithContextRequest struct {
	Message    string `json:"message"`
	UseContext *bool  `json:"use_context,omitempty"`
}

// WantsContext reports whether retrieval was requested.
func (r AskWithContextRequest) WantsContext() bool {
	return r.UseContext == nil || *r.UseContext
}
