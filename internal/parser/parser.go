package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyDocument     = errors.New("document is empty")
	ErrNoText            = errors.New("document contains no extractable text; scanned or image-only PDFs are not supported")
	ErrEncrypted         = errors.New("document is password protected")
	ErrUnreadable        = errors.New("document could not be read")
)

// Parser extracts page texts from raw file bytes.
type Parser interface {
	Parse(data []byte) ([]models.Page, error)
}

type ParserFunc func(data []byte) ([]models.Page, error)

func (f ParserFunc) Parse(data []byte) ([]models.Page, error) { return f(data) }

var parsers = map[string]Parser{
	".pdf":  ParserFunc(parsePDF),
	".docx": ParserFunc(parseDOCX),
	".pptx": ParserFunc(parsePPTX),
	".xlsx": ParserFunc(parseXLSX),
	".ods":  ParserFunc(parseODS),
	".md":   ParserFunc(parseMarkdown),
	".txt":  ParserFunc(parseText),
}

// Supported reports whether a loader exists for the file name's extension.
func Supported(name string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Load extracts the pages of an uploaded file. Pages without text are kept
// out of the result; a document with no text at all is an error.
func Load(name string, data []byte) (doc *models.Document, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	ext := strings.ToLower(filepath.Ext(name))
	p, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	// the PDF and spreadsheet readers panic on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("file", name).Msg("Parser panicked")
			doc, err = nil, fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	pages, err := p.Parse(data)
	if err != nil {
		return nil, err
	}

	var kept []models.Page
	for _, page := range pages {
		page.Text = normalize(page.Text)
		if strings.TrimSpace(page.Text) == "" {
			log.Debug().Str("file", name).Int("page", page.Number).Msg("Skipping page without text")
			continue
		}
		kept = append(kept, page)
	}
	if len(kept) == 0 {
		if len(pages) == 0 {
			return nil, ErrEmptyDocument
		}
		return nil, ErrNoText
	}

	log.Debug().Str("file", name).Int("pages", len(pages)).Int("text_pages", len(kept)).Msg("Document loaded")
	return models.NewDocument(name, data, kept), nil
}

// normalize unifies line endings and strips NUL bytes left by some PDF encoders.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\x00", "")
}

func parseText(data []byte) ([]models.Page, error) {
	return []models.Page{{Number: 1, Text: string(data)}}, nil
}
