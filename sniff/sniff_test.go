package sniff

import (
	"archive/zip"
	"bytes"
	"testing"
)

func zipWith(t *testing.T, entries ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		f.Write([]byte("<x/>"))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIdentifyDocx(t *testing.T) {
	data := zipWith(t, "[Content_Types].xml", "word/document.xml")
	res := Identify(data)
	if res.Detected != ".docx" || res.Confidence != 0.9 {
		t.Fatalf("got %+v, want .docx at 0.9", res)
	}
}

func TestIdentifyOtherOfficeContainers(t *testing.T) {
	tests := []struct {
		marker string
		ext    string
	}{
		{"xl/workbook.xml", ".xlsx"},
		{"ppt/presentation.xml", ".pptx"},
	}
	for _, tt := range tests {
		res := Identify(zipWith(t, tt.marker))
		if res.Detected != tt.ext || res.Confidence != 0.9 {
			t.Errorf("marker %s: got %+v", tt.marker, res)
		}
	}
}

func TestIdentifyGenericZip(t *testing.T) {
	res := Identify(zipWith(t, "readme.txt"))
	if res.Detected != ".zip" || res.Confidence != 0.7 {
		t.Fatalf("got %+v, want .zip at 0.7", res)
	}
}

func TestIdentifyTruncatedZip(t *testing.T) {
	data := zipWith(t, "word/document.xml")
	res := Identify(data[:16]) // magic intact, central directory gone
	if res.Detected != ".zip" || res.Confidence != 0.5 {
		t.Fatalf("got %+v, want .zip at 0.5", res)
	}
}

func TestIdentifyPDF(t *testing.T) {
	res := Identify([]byte("%PDF-1.7\n%more"))
	if res.Detected != ".pdf" || res.Confidence != 0.9 {
		t.Fatalf("got %+v, want .pdf at 0.9", res)
	}
}

func TestIdentifyLegacyDoc(t *testing.T) {
	data := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 512)...)
	res := Identify(data)
	if res.Detected != ".doc" || res.Confidence != 0.9 {
		t.Fatalf("got %+v, want .doc at 0.9", res)
	}
}

func TestIdentifyUnknown(t *testing.T) {
	res := Identify([]byte("plain text, no magic"))
	if res.Detected != "" || res.Confidence != 0 {
		t.Fatalf("got %+v, want unknown at 0", res)
	}
	if res := Identify([]byte("ab")); res.Confidence != 0 {
		t.Fatalf("short buffer: got %+v", res)
	}
}
