package models

import (
	"crypto/sha256"
	"encoding/hex"
)

type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is an uploaded file and the text extracted from it.
type Document struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages []Page `json:"pages"`
	Data  []byte `json:"-"`
}

func NewDocument(name string, data []byte, pages []Page) *Document {
	return &Document{
		ID:    DocumentID(data),
		Name:  name,
		Size:  int64(len(data)),
		Pages: pages,
		Data:  data,
	}
}

// DocumentID is the content hash of the raw bytes.
func DocumentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func (d *Document) PageCount() int { return len(d.Pages) }
