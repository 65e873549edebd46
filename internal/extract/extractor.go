// Package extract turns uploaded construction documents into content an analysis provider can read:
// plain text for PDF, DOCX, XLSX, CSV and TXT, raw bytes for images.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/buildcost/pkg/utils"
)

// DefaultMaxTextBytes caps extracted text handed to a provider.
const DefaultMaxTextBytes = 200_000

// Content is the extracted form of one document. Exactly one of Text or Data is set.
type Content struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsImage reports whether the content is a binary image for vision-capable providers.
func (c Content) IsImage() bool {
	return len(c.Data) > 0
}

// Extractor extracts content from document bytes by file extension.
type Extractor struct {
	maxText int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxTextBytes sets the text truncation limit. Zero or negative disables truncation.
func WithMaxTextBytes(n int) Option {
	return func(e *Extractor) {
		e.maxText = n
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxText: DefaultMaxTextBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Extract returns the content of a document named fileName.
// Returns an error if the format is unsupported or the document cannot be parsed.
func (e *Extractor) Extract(fileName string, content []byte) (Content, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if mime, ok := imageTypes[ext]; ok {
		return Content{Data: content, MIMEType: mime}, nil
	}
	text, mime, err := e.extractText(content, ext)
	if err != nil {
		return Content{}, fmt.Errorf("extract %s: %w", fileName, err)
	}
	return Content{Text: utils.Truncate(strings.TrimSpace(text), e.maxText), MIMEType: mime}, nil
}

func (e *Extractor) extractText(content []byte, ext string) (string, string, error) {
	switch ext {
	case ".pdf":
		s, err := extractPDF(content)
		return s, "application/pdf", err
	case ".docx":
		s, err := extractDOCX(content)
		return s, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", err
	case ".xlsx":
		s, err := extractExcel(content)
		return s, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	case ".csv":
		s, err := extractCSV(content)
		return s, "text/csv", err
	case ".txt":
		s, err := extractPlain(content)
		return s, "text/plain", err
	default:
		return "", "", fmt.Errorf("unsupported document type %q", ext)
	}
}
