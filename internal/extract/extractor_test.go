package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtract_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract("notes.txt", []byte("Slab 120 m2\nWalls 80 m2\n"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Slab 120 m2\nWalls 80 m2" {
		t.Errorf("got %q", got.Text)
	}
	if got.MIMEType != "text/plain" || got.IsImage() {
		t.Errorf("unexpected content kind: %+v", got)
	}
}

func TestExtract_plainInvalidUTF8AndBOM(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract("scope.TXT", []byte("\xef\xbb\xbfhello\x80world"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "hello\ufffdworld" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_csv(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract("boq.csv", []byte("item,qty,unit\n\"Concrete, C30\",45,m3\n"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "item\tqty\tunit\nConcrete, C30\t45\tm3" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_csvSemicolon(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract("boq.csv", []byte("Position;Menge;Einheit\nBeton;45,5;m3\n"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Position\tMenge\tEinheit\nBeton\t45,5\tm3" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Item")
	f.SetCellValue("Sheet1", "B1", "Qty")
	f.SetCellValue("Sheet1", "A2", "Rebar")
	f.SetCellValue("Sheet1", "B2", 1200)
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().Extract("takeoff.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Item\tQty\nRebar\t1200" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_excelMultipleSheets(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Earthworks")
	if _, err := f.NewSheet("MEP"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("MEP", "A1", "Ductwork")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().Extract("multi.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "# Sheet1\nEarthworks\n# MEP\nDuctwork" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_image(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\nfake")
	got, err := NewExtractor().Extract("plan.PNG", data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !got.IsImage() || got.MIMEType != "image/png" || !bytes.Equal(got.Data, data) {
		t.Errorf("unexpected image content: %+v", got)
	}
	if got.Text != "" {
		t.Errorf("image should carry no text, got %q", got.Text)
	}
}

func TestExtract_unsupported(t *testing.T) {
	if _, err := NewExtractor().Extract("deck.pptx", []byte("x")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExtract_truncatesText(t *testing.T) {
	e := NewExtractor(WithMaxTextBytes(10))
	got, err := e.Extract("long.txt", []byte(strings.Repeat("a", 50)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != strings.Repeat("a", 10)+"..." {
		t.Errorf("got %q", got.Text)
	}
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// minimalDocx returns .docx zip bytes with the given body XML stored at docPath. When docPath is not
// the default, a [Content_Types].xml pointing at it is written too.
func minimalDocx(body, docPath string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if docPath != docxDefaultBody {
		ct, _ := w.Create(contentTypesPath)
		_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="` + docxMainContentType + `" PartName="/` + docPath + `"/>
</Types>`))
	}
	fw, _ := w.Create(docPath)
	_, _ = fw.Write([]byte(`<w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_docxParagraphs(t *testing.T) {
	body := `<w:p w:rsidR="00AB"><w:pPr><w:jc w:val="left"/></w:pPr><w:r><w:t>Scope of </w:t></w:r><w:r><w:t xml:space="preserve">works</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Brick</w:t></w:r><w:r><w:tab/></w:r><w:r><w:t>200 m&amp;sup2; &lt;approx&gt;</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t></w:t></w:r></w:p>`
	got, err := NewExtractor().Extract("spec.docx", minimalDocx(body, docxDefaultBody))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Scope of works\nBrick\t200 m&sup2; <approx>"
	if got.Text != want {
		t.Errorf("got %q, want %q", got.Text, want)
	}
}

func TestExtract_docxCustomMainPart(t *testing.T) {
	body := `<w:p><w:r><w:t>Content from document2</w:t></w:r></w:p>`
	got, err := NewExtractor().Extract("spec.docx", minimalDocx(body, "word/document2.xml"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Content from document2" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_docxInvalid(t *testing.T) {
	e := NewExtractor()
	if _, err := e.Extract("bad.docx", []byte("not a zip")); err == nil {
		t.Error("expected error for non-zip docx")
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	if _, err := e.Extract("empty.docx", buf.Bytes()); err == nil {
		t.Error("expected error when document body is missing")
	}
}

func TestExtract_pdfInvalid(t *testing.T) {
	if _, err := NewExtractor().Extract("plan.pdf", []byte("%PDF-garbage")); err == nil {
		t.Error("expected error for malformed pdf")
	}
}

func TestMainDocumentPart(t *testing.T) {
	ct := `<Types><Override PartName="/word/styles.xml" ContentType="application/style+xml"/>` +
		`<Override PartName="/word/main.xml" ContentType="` + docxMainContentType + `"/></Types>`
	if got := mainDocumentPart(ct); got != "word/main.xml" {
		t.Errorf("got %q", got)
	}
	if got := mainDocumentPart(`<Types/>`); got != "" {
		t.Errorf("got %q", got)
	}
}
