package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBody     = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// wParagraph matches one <w:p ...>...</w:p> paragraph, attributes included.
	wParagraph = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	// wText matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t>.
	wText = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	// wTab matches tab runs, which separate columns in quantity tables.
	wTab = regexp.MustCompile(`<w:tab/>`)

	overrideRe = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameRe = regexp.MustCompile(`PartName="([^"]+)"`)
)

var xmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

// extractDOCX extracts text from .docx bytes, one line per paragraph. Runs inside a paragraph
// are concatenated as-is since Word splits words across runs freely.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	body := docxDefaultBody
	if types, err := readZipFile(zr, contentTypesPath); err == nil {
		if p := mainDocumentPart(string(types)); p != "" {
			body = p
		}
	}
	docXML, err := readZipFile(zr, body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	var lines []string
	for _, para := range wParagraph.FindAllString(string(docXML), -1) {
		para = wTab.ReplaceAllString(para, "<w:t>\t</w:t>")
		var b strings.Builder
		for _, m := range wText.FindAllStringSubmatch(para, -1) {
			b.WriteString(m[1])
		}
		if line := strings.TrimSpace(xmlEntities.Replace(b.String())); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// mainDocumentPart returns the part name of the main document declared in [Content_Types].xml,
// without its leading slash, or "" when none is declared.
func mainDocumentPart(contentTypes string) string {
	for _, ov := range overrideRe.FindAllString(contentTypes, -1) {
		if !strings.Contains(ov, `ContentType="`+docxMainContentType+`"`) {
			continue
		}
		if m := partNameRe.FindStringSubmatch(ov); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return ""
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
