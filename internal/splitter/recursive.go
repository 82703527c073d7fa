package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"pdf-rag/internal/models"
)

// Recursive splits on paragraph, line, word and character separators in
// that order, merging pieces up to Size runes. Separators at chunk edges
// are dropped, so coverage is best effort; Start and End are located by
// searching the chunk text in its page and are -1 when it cannot be found.
type Recursive struct {
	Size    int
	Overlap int
}

func (r *Recursive) Split(doc *models.Document) ([]models.Chunk, error) {
	if err := validate(r.Size, r.Overlap); err != nil {
		return nil, err
	}
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(r.Size),
		textsplitter.WithChunkOverlap(r.Overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)

	var chunks []models.Chunk
	for _, page := range doc.Pages {
		parts, err := ts.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split page %d: %w", page.Number, err)
		}
		cursor := 0
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			start, end := -1, -1
			if i := strings.Index(page.Text[cursor:], part); i >= 0 {
				byteStart := cursor + i
				start = utf8.RuneCountInString(page.Text[:byteStart])
				end = start + utf8.RuneCountInString(part)
				cursor = byteStart + 1
				for cursor < len(page.Text) && !utf8.RuneStart(page.Text[cursor]) {
					cursor++
				}
			}
			chunks = append(chunks, models.Chunk{
				Index:      len(chunks),
				PageNumber: page.Number,
				Start:      start,
				End:        end,
				Content:    part,
			})
		}
	}
	return chunks, nil
}
