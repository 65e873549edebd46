package pipeline

import (
	"bytes"
	"errors"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  []byte
		max      int64
		wantMIME string
		wantErr  error
	}{
		{"pdf", "plan.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n"), 0, "application/pdf", nil},
		{"png", "Site Photo.PNG", pngHeader, 0, "image/png", nil},
		{"csv", "boq.csv", []byte("item,qty,unit\nConcrete,12,m3\n"), 0, "text/csv", nil},
		{"txt", "notes.txt", []byte("Slab 120 m2, walls 80 m2"), 0, "text/plain", nil},
		{"empty", "plan.pdf", nil, 0, "", ErrEmptyFile},
		{"too large", "notes.txt", bytes.Repeat([]byte("a"), 11), 10, "", ErrFileTooLarge},
		{"exact limit", "notes.txt", bytes.Repeat([]byte("a"), 10), 10, "text/plain", nil},
		{"bad extension", "model.dwg", []byte("AC1027"), 0, "", ErrUnsupportedType},
		{"no extension", "README", []byte("hello"), 0, "", ErrUnsupportedType},
		{"mismatched content", "photo.png", []byte("just text"), 0, "", ErrUnsupportedType},
		{"binary as txt", "notes.txt", pngHeader, 0, "", ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, err := Validate(tt.file, tt.content, tt.max)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate(%q) error = %v, want %v", tt.file, err, tt.wantErr)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.FileName != tt.file {
					t.Errorf("expected *ValidationError for %q, got %T", tt.file, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) unexpected error: %v", tt.file, err)
			}
			if mime != tt.wantMIME {
				t.Errorf("Validate(%q) = %q, want %q", tt.file, mime, tt.wantMIME)
			}
		})
	}
}

func TestAllowedExtensions(t *testing.T) {
	exts := AllowedExtensions()
	want := []string{".csv", ".docx", ".jpeg", ".jpg", ".pdf", ".png", ".txt", ".webp", ".xlsx"}
	if len(exts) != len(want) {
		t.Fatalf("got %v", exts)
	}
	for i := range want {
		if exts[i] != want[i] {
			t.Errorf("exts[%d] = %s, want %s", i, exts[i], want[i])
		}
	}
}
