package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/inkmill/sigprep/sniff"
)

// writeDocx builds a minimal .docx container holding the given paragraphs.
// Paragraphs prefixed with "u:" get an underlined run.
func writeDocx(t *testing.T, path string, paragraphs ...string) {
	t.Helper()

	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		if underlined, ok := strings.CutPrefix(p, "u:"); ok {
			body.WriteString(`<w:p><w:r><w:rPr><w:u w:val="single"/></w:rPr><w:t>` + underlined + `</w:t></w:r></w:p>`)
			continue
		}
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agreement.docx")
	writeDocx(t, path,
		"Consulting Agreement",
		"This agreement is between {clientName} and the firm.",
		"u:Sign here",
	)

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Format != FormatDocx {
		t.Fatalf("format = %q, want docx", doc.Format)
	}
	if doc.Title != "Consulting Agreement" {
		t.Errorf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "{clientName}") {
		t.Errorf("template tag lost in text:\n%s", doc.Text)
	}
	lines := strings.Split(strings.TrimRight(doc.Text, "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("got %d lines, want 3: %q", len(lines), lines)
	}
	if !strings.Contains(doc.HTML, "<u>Sign here</u>") {
		t.Errorf("underline run not preserved in HTML:\n%s", doc.HTML)
	}
}

func TestExtractTextNormalization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	content := "Line one  \r\nLine two\r\r\n\n\n\nLine three {sig_es_:signer1:signature}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Line one\nLine two\n\nLine three {sig_es_:signer1:signature}"
	if doc.Text != want {
		t.Errorf("text = %q, want %q", doc.Text, want)
	}
}

func TestDetectTrustsContentOverExtension(t *testing.T) {
	// A docx container renamed to a meaningless extension still classifies
	// as docx.
	path := filepath.Join(t.TempDir(), "upload.bin")
	writeDocx(t, path, "Hello")

	format, err := New(Config{}).Detect(path)
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatDocx {
		t.Errorf("format = %q, want docx", format)
	}
}

func TestExtractRejectsLegacyDoc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.doc")
	magic := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	if err := os.WriteFile(path, append(magic, []byte("legacy")...), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{}).Extract(context.Background(), path)
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xyz")
	if err := os.WriteFile(path, []byte("no known signature"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{}).Extract(context.Background(), path)
	var unsupported *sniff.UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want *sniff.UnsupportedFormatError", err)
	}
}

func TestExtractMaxFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{MaxFileSize: 1024}).Extract(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("err = %v, want size error", err)
	}
}

func TestExtractHTMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agreement.html")
	markup := `<!DOCTYPE html><html><head><title>Engagement Letter</title></head><body>
<p>This engagement letter covers services provided to {clientName} beginning on the effective date stated below and continuing until terminated by either party.</p>
<p>Signature: <u>__________________________</u></p>
</body></html>`
	if err := os.WriteFile(path, []byte(markup), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Engagement Letter" {
		t.Errorf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "{clientName}") {
		t.Errorf("template tag lost:\n%s", doc.Text)
	}
	if !strings.Contains(doc.HTML, "<u>") {
		t.Errorf("underline not preserved in HTML:\n%s", doc.HTML)
	}
}

func TestMainContentPrefersLandmark(t *testing.T) {
	markup := `<html><body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<main><p>This master services agreement sets out the terms under which the provider will deliver consulting services to the client, including payment terms and termination rights.</p></main>
<footer>Unsubscribe from these emails</footer>
</body></html>`
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}

	node := mainContent(doc)
	if node == nil {
		t.Fatal("mainContent returned nil")
	}
	text := nodeText(node)
	if !strings.Contains(text, "master services agreement") {
		t.Errorf("main content missing prose: %q", text)
	}
	if strings.Contains(text, "Unsubscribe") || strings.Contains(text, "About") {
		t.Errorf("chrome leaked into main content: %q", text)
	}
}

func TestMainContentDensityFallback(t *testing.T) {
	prose := strings.Repeat("The parties agree to the terms set out in this section. ", 5)
	markup := `<html><body>
<div id="sidebar"><a href="/a">One</a> <a href="/b">Two</a> <a href="/c">Three</a></div>
<div><p>` + prose + `</p></div>
</body></html>`
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}

	node := mainContent(doc)
	if node == nil {
		t.Fatal("mainContent returned nil")
	}
	text := nodeText(node)
	if !strings.Contains(text, "parties agree") {
		t.Errorf("density pick missing prose: %q", text)
	}
	if strings.Contains(text, "Three") {
		t.Errorf("link block leaked: %q", text)
	}
}

func TestPrintableRatio(t *testing.T) {
	if got := printableRatio("clean text only"); got != 1.0 {
		t.Errorf("clean text ratio = %v", got)
	}
	garbled := "ok\x00\x01\x02\x03\x04\x05\x06\x07\x08"
	if got := printableRatio(garbled); got > 0.5 {
		t.Errorf("garbled ratio = %v, want low", got)
	}
}

func TestQualityUsable(t *testing.T) {
	good := &Quality{PageCount: 2, CharsPerPage: 900, PrintableRatio: 0.99}
	if !good.Usable() {
		t.Error("good quality reported unusable")
	}
	scanned := &Quality{PageCount: 10, CharsPerPage: 3, PrintableRatio: 0.99}
	if scanned.Usable() {
		t.Error("scanned PDF reported usable")
	}
	garbage := &Quality{PageCount: 2, CharsPerPage: 400, PrintableRatio: 0.4}
	if garbage.Usable() {
		t.Error("garbage text reported usable")
	}
}
