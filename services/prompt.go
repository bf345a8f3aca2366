package services

import (
	"fmt"
	"strings"
)

// contextPromptTemplate grounds the answer in retrieved document text.
// Arguments: context, question.
const contextPromptTemplate = `
Context from documents:
%s

Question: %s

Please answer the question based on the provided context. If the context doesn't contain relevant information, you can provide a general answer but mention that it's not based on the uploaded documents.
`

// BuildPrompt returns the raw question when there is no context.
func BuildPrompt(question, context string) string {
	if context == "" {
		return question
	}
	return fmt.Sprintf(contextPromptTemplate, context, question)
}

// joinContext concatenates retrieved chunk texts in rank order.
func joinContext(texts []string) string {
	return strings.Join(texts, "\n\n")
}
