package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/itish2003/minirag/models"
)

const (
	// DefaultChunkSize is the window length in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of characters shared by neighbours.
	DefaultChunkOverlap = 100
)

// Chunker splits a document into retrieval units.
type Chunker interface {
	Chunk(doc *models.Document) ([]models.Chunk, error)
}

// NewChunker returns the chunker for strategy "fixed" or "recursive".
func NewChunker(strategy string, size, overlap int) (Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("invalid chunk window: size %d, overlap %d", size, overlap)
	}
	switch strategy {
	case "", "fixed":
		return &FixedWindowChunker{Size: size, Overlap: overlap}, nil
	case "recursive":
		return &RecursiveChunker{Size: size, Overlap: overlap}, nil
	}
	return nil, fmt.Errorf("unknown chunk strategy %q", strategy)
}

// FixedWindowChunker cuts the concatenated page text into windows of Size
// runes. Window i starts at rune offset i*(Size-Overlap), so neighbours share
// exactly Overlap runes. The last window is the first one that reaches the
// end of the text.
type FixedWindowChunker struct {
	Size    int
	Overlap int
}

func (c *FixedWindowChunker) Chunk(doc *models.Document) ([]models.Chunk, error) {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return nil, fmt.Errorf("invalid chunk window: size %d, overlap %d", c.Size, c.Overlap)
	}
	text := []rune(doc.Text())
	if strings.TrimSpace(string(text)) == "" {
		return nil, nil
	}
	starts := pageStarts(doc)

	step := c.Size - c.Overlap
	chunks := make([]models.Chunk, 0, len(text)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.Size, len(text))
		chunks = append(chunks, models.Chunk{
			ID:     uuid.New().String(),
			Source: doc.Source,
			Page:   pageAt(starts, doc, start),
			Index:  len(chunks),
			Offset: start,
			Text:   string(text[start:end]),
		})
		if end == len(text) {
			break
		}
	}
	return chunks, nil
}

// pageStarts returns the rune offset of each page inside doc.Text().
func pageStarts(doc *models.Document) []int {
	starts := make([]int, len(doc.Pages))
	offset := 0
	sep := utf8.RuneCountInString(models.PageSeparator)
	for i, p := range doc.Pages {
		starts[i] = offset
		offset += utf8.RuneCountInString(p.Text) + sep
	}
	return starts
}

// pageAt returns the number of the page containing rune offset pos.
func pageAt(starts []int, doc *models.Document, pos int) int {
	page := 0
	for i, s := range starts {
		if s > pos {
			break
		}
		page = doc.Pages[i].Number
	}
	return page
}

// RecursiveChunker splits each page on paragraph, line and word boundaries
// before falling back to characters, keeping pieces under Size runes.
type RecursiveChunker struct {
	Size    int
	Overlap int
}

func (c *RecursiveChunker) Chunk(doc *models.Document) ([]models.Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.Size),
		textsplitter.WithChunkOverlap(c.Overlap),
	)
	starts := pageStarts(doc)

	var chunks []models.Chunk
	for i, page := range doc.Pages {
		pieces, err := splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("could not split page %d: %w", page.Number, err)
		}
		searchFrom := 0
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			// The splitter trims pieces, so locate each one in the page to
			// recover its offset.
			local := runeIndex(page.Text, piece, searchFrom)
			offset := starts[i]
			if local >= 0 {
				offset += local
				searchFrom = local + 1
			}
			chunks = append(chunks, models.Chunk{
				ID:     uuid.New().String(),
				Source: doc.Source,
				Page:   page.Number,
				Index:  len(chunks),
				Offset: offset,
				Text:   piece,
			})
		}
	}
	return chunks, nil
}

// runeIndex finds sub in s at or after rune offset from and returns its rune
// offset, or -1.
func runeIndex(s, sub string, from int) int {
	r := []rune(s)
	if from > len(r) {
		return -1
	}
	i := strings.Index(string(r[from:]), sub)
	if i < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(string(r[from:])[:i])
}
