package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileSize is the per-file upload limit when none is configured.
const DefaultMaxFileSize int64 = 20 << 20

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ValidationError describes why an uploaded file was rejected.
type ValidationError struct {
	FileName string
	Err      error
	Detail   string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.FileName, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.FileName, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type fileType struct {
	mime    string
	sniffed []string // acceptable detected types, checked up the mimetype hierarchy
}

var allowed = map[string]fileType{
	".pdf":  {mime: "application/pdf", sniffed: []string{"application/pdf"}},
	".png":  {mime: "image/png", sniffed: []string{"image/png"}},
	".jpg":  {mime: "image/jpeg", sniffed: []string{"image/jpeg"}},
	".jpeg": {mime: "image/jpeg", sniffed: []string{"image/jpeg"}},
	".webp": {mime: "image/webp", sniffed: []string{"image/webp"}},
	".xlsx": {
		mime:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		sniffed: []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	},
	".docx": {
		mime:    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		sniffed: []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	},
	".csv": {mime: "text/csv", sniffed: []string{"text/csv", "text/plain"}},
	".txt": {mime: "text/plain", sniffed: []string{"text/plain"}},
}

// AllowedExtensions returns the accepted file extensions, sorted.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowed))
	for ext := range allowed {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Validate checks an uploaded file before anything is stored or analyzed and returns its MIME type.
// The extension must be allowed and the sniffed content must agree with it. maxSize <= 0 uses
// DefaultMaxFileSize.
func Validate(fileName string, content []byte, maxSize int64) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if len(content) == 0 {
		return "", &ValidationError{FileName: fileName, Err: ErrEmptyFile}
	}
	if int64(len(content)) > maxSize {
		return "", &ValidationError{FileName: fileName, Err: ErrFileTooLarge,
			Detail: fmt.Sprintf("%d bytes, limit %d", len(content), maxSize)}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	ft, ok := allowed[ext]
	if !ok {
		return "", &ValidationError{FileName: fileName, Err: ErrUnsupportedType, Detail: "extension " + quoteExt(ext)}
	}
	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range ft.sniffed {
			if m.Is(want) {
				return ft.mime, nil
			}
		}
	}
	return "", &ValidationError{FileName: fileName, Err: ErrUnsupportedType,
		Detail: fmt.Sprintf("content is %s, not %s", detected.String(), ext)}
}

func quoteExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
