package splitter

import (
	"errors"
	"fmt"
	"unicode"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Splitter turns the pages of a document into ordered chunks.
type Splitter interface {
	Split(doc *models.Document) ([]models.Chunk, error)
}

// New returns the splitter named by kind for the given size and overlap.
func New(kind string, size, overlap int) (Splitter, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	switch kind {
	case config.SplitterCharacter, "":
		return &Character{Size: size, Overlap: overlap}, nil
	case config.SplitterRecursive:
		return &Recursive{Size: size, Overlap: overlap}, nil
	default:
		return nil, fmt.Errorf("%w: unknown splitter %q", ErrInvalidChunkConfig, kind)
	}
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunkConfig, size, overlap)
	}
	return nil
}

// Character cuts each page into windows of Size runes that advance by
// Size-Overlap. A window may end early at whitespace in its last tenth, but
// never so early that it stops overlapping the next one, so consecutive
// chunks of a page always touch and together cover the page text.
type Character struct {
	Size    int
	Overlap int
}

func (c *Character) Split(doc *models.Document) ([]models.Chunk, error) {
	if err := validate(c.Size, c.Overlap); err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	for _, page := range doc.Pages {
		for _, w := range c.windows(page.Text) {
			chunks = append(chunks, models.Chunk{
				Index:      len(chunks),
				PageNumber: page.Number,
				Start:      w.start,
				End:        w.end,
				Content:    w.text,
			})
		}
	}
	return chunks, nil
}

type span struct {
	start, end int
	text       string
}

func (c *Character) windows(text string) []span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []span
	start := 0
	for {
		end := min(start+c.Size, n)
		if end < n {
			lookBack := c.Size / 10
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if !unicode.IsSpace(runes[i]) {
					continue
				}
				// the window has to stay longer than the overlap so the next start moves forward
				if i+1-start > c.Overlap {
					end = i + 1
				}
				break
			}
		}
		out = append(out, span{start: start, end: end, text: string(runes[start:end])})
		if end == n {
			return out
		}
		start = end - c.Overlap
	}
}
