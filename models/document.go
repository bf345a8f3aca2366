package models

import "strings"

// PageSeparator is inserted between pages when a document is flattened.
const PageSeparator = "\n\n"

// Page is the raw text of one page, numbered from 1.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is a loaded source file. It is not modified after loading.
type Document struct {
	Source string `json:"source"`
	Pages  []Page `json:"pages"`
}

// Text concatenates all pages with PageSeparator.
func (d Document) Text() string {
	parts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, PageSeparator)
}

// Chunk is a bounded window of document text used as a retrieval unit.
// Offset is measured in runes from the start of Document.Text().
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  int    `json:"index"`
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

// IndexedFile identifies the file the vector index was last built from.
// Hash is the hex SHA-256 of the file contents.
type IndexedFile struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}
