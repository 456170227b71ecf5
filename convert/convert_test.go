package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/inkmill/sigprep/sniff"
)

// stub scripts per-target results so the fallback logic is testable without
// a converter binary installed.
type stub struct {
	results map[string][]byte
	errs    map[string]error
	calls   []string
}

func (s *stub) Convert(ctx context.Context, data []byte, srcExt, targetExt string) ([]byte, error) {
	s.calls = append(s.calls, targetExt)
	if err := s.errs[targetExt]; err != nil {
		return nil, err
	}
	return s.results[targetExt], nil
}

// minimalPDF is the smallest structure pdfcpu accepts as a one-page PDF.
const minimalPDF = `%PDF-1.4
1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj
2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj
3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>endobj
xref
0 4
0000000000 65535 f
0000000009 00000 n
0000000052 00000 n
0000000101 00000 n
trailer<</Size 4/Root 1 0 R>>
startxref
164
%%EOF`

func TestToPDFDirect(t *testing.T) {
	s := &stub{results: map[string][]byte{".pdf": []byte(minimalPDF)}}
	out, err := ToPDF(context.Background(), s, []byte("input"), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}
	if len(s.calls) != 1 || s.calls[0] != ".pdf" {
		t.Fatalf("calls = %v, want one direct .pdf conversion", s.calls)
	}
}

func TestToPDFDocFallsBackThroughDocx(t *testing.T) {
	s := &stub{
		results: map[string][]byte{".docx": []byte("docx bytes")},
		errs:    map[string]error{".pdf": errors.New("import filter crashed")},
	}
	// First .pdf call fails; after the .docx step the stub stops failing.
	firstPDF := true
	inner := s
	wrapped := convFunc(func(ctx context.Context, data []byte, src, target string) ([]byte, error) {
		if target == ".pdf" && firstPDF {
			firstPDF = false
			inner.calls = append(inner.calls, target)
			return nil, errors.New("import filter crashed")
		}
		if target == ".pdf" {
			inner.calls = append(inner.calls, target)
			return []byte(minimalPDF), nil
		}
		return inner.Convert(ctx, data, src, target)
	})

	out, err := ToPDF(context.Background(), wrapped, []byte("legacy doc"), ".doc")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}
	want := []string{".pdf", ".docx", ".pdf"}
	if len(inner.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", inner.calls, want)
	}
	for i := range want {
		if inner.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", inner.calls, want)
		}
	}
}

func TestToPDFNonDocDoesNotFallBack(t *testing.T) {
	s := &stub{errs: map[string]error{".pdf": errors.New("boom")}}
	_, err := ToPDF(context.Background(), s, []byte("x"), ".docx")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(s.calls) != 1 {
		t.Fatalf("calls = %v, want no fallback for non-doc sources", s.calls)
	}
}

type convFunc func(ctx context.Context, data []byte, srcExt, targetExt string) ([]byte, error)

func (f convFunc) Convert(ctx context.Context, data []byte, srcExt, targetExt string) ([]byte, error) {
	return f(ctx, data, srcExt, targetExt)
}

// fakeBinary writes a shell script that mimics the converter's CLI: it
// reads --convert-to and --outdir plus the input path and drops a marker
// file with the target extension into the output directory.
func fakeBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	path := filepath.Join(t.TempDir(), "fakeconv")
	script := `#!/bin/sh
target="$4"
outdir="$6"
in="$7"
base=$(basename "$in")
printf 'converted' > "$outdir/${base%.*}.$target"
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertFallsBackToCallerExtension(t *testing.T) {
	l := New(Config{Binary: fakeBinary(t), WorkDir: t.TempDir()})

	// Plain text has no magic signature; the caller's extension names the
	// input file so the converter picks the right import filter.
	out, err := l.Convert(context.Background(), []byte("Consulting Agreement\n\nSign below."), ".txt", ".pdf")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "converted" {
		t.Fatalf("output = %q", out)
	}
}

func TestConvertUnknownFormatWithoutExtension(t *testing.T) {
	l := New(Config{Binary: fakeBinary(t), WorkDir: t.TempDir()})

	_, err := l.Convert(context.Background(), []byte("no signature here"), "", ".pdf")
	var ufe *sniff.UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("err = %v, want UnsupportedFormatError", err)
	}
}

func TestConvertTrustsBytesOverExtension(t *testing.T) {
	l := New(Config{Binary: fakeBinary(t), WorkDir: t.TempDir()})

	// A sniffable signature wins over a contradictory caller extension.
	pdfBytes := []byte(minimalPDF)
	out, err := l.Convert(context.Background(), pdfBytes, ".txt", ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "converted" {
		t.Fatalf("output = %q", out)
	}
}

func TestValidatePDFRejectsGarbage(t *testing.T) {
	if err := ValidatePDF([]byte("not a pdf at all")); err == nil {
		t.Fatal("expected validation error")
	}
	var convErr *Error
	err := ValidatePDF([]byte("%PDF-1.4 truncated"))
	if err == nil || !errors.As(err, &convErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestNormalizeExt(t *testing.T) {
	tests := []struct{ in, want string }{
		{"pdf", ".pdf"},
		{".PDF", ".pdf"},
		{" docx ", ".docx"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeExt(tt.in); got != tt.want {
			t.Errorf("normalizeExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
