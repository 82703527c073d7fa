package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

func parsePDF(data []byte) ([]models.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, ErrEmptyDocument
	}

	return extractPages(numPages, func(i int) (string, error) {
		page := reader.Page(i)
		if page.V.IsNull() {
			return "", errMissingPage
		}
		return page.GetPlainText(nil)
	})
}

var errMissingPage = errors.New("page object missing")

// extractPages reads pages 1..numPages. Pages that fail are skipped; if none
// could be read the file is reported unreadable rather than empty.
func extractPages(numPages int, textOf func(i int) (string, error)) ([]models.Page, error) {
	pages := make([]models.Page, 0, numPages)
	var lastErr error
	for i := 1; i <= numPages; i++ {
		pageText, err := textOf(i)
		if err != nil {
			// image-only or damaged page
			log.Warn().Err(err).Int("page", i).Msg("Failed to extract page text")
			lastErr = err
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no page of %d could be read: %v", ErrUnreadable, numPages, lastErr)
	}
	return pages, nil
}
