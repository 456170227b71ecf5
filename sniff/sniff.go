// Package sniff classifies document files by magic bytes rather than
// extension. A zip container is opened and its listing inspected to tell
// .docx from other office formats; the sniffed type always wins over the
// file's extension when the two disagree.
package sniff

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
)

// Result is a detected format with a confidence score.
type Result struct {
	Detected   string  `json:"detected"`   // extension with leading dot, "" when unknown
	Confidence float64 `json:"confidence"` // 0.9 confirmed, 0.7/0.5 unconfirmed zip, 0 unknown
}

var (
	magicZip = []byte{0x50, 0x4B, 0x03, 0x04}
	magicPDF = []byte{0x25, 0x50, 0x44, 0x46} // %PDF
	magicCFB = []byte{0xD0, 0xCF, 0x11, 0xE0} // legacy compound binary (.doc)
)

// Entries that disambiguate an office zip container.
var containerMarkers = []struct {
	entry string
	ext   string
}{
	{"word/document.xml", ".docx"},
	{"xl/workbook.xml", ".xlsx"},
	{"ppt/presentation.xml", ".pptx"},
}

// Identify classifies a byte buffer by its first 8 bytes, descending into
// the zip listing when the buffer is a zip container.
func Identify(data []byte) Result {
	if len(data) < 8 {
		return Result{}
	}

	switch {
	case bytes.HasPrefix(data, magicPDF):
		return Result{Detected: ".pdf", Confidence: 0.9}
	case bytes.HasPrefix(data, magicCFB):
		return Result{Detected: ".doc", Confidence: 0.9}
	case bytes.HasPrefix(data, magicZip):
		return identifyZip(data)
	}
	return Result{}
}

func identifyZip(data []byte) Result {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Zip magic but unreadable central directory (truncated upload,
		// streamed archive): keep the container guess at low confidence.
		return Result{Detected: ".zip", Confidence: 0.5}
	}

	names := make(map[string]bool, len(r.File))
	for _, f := range r.File {
		names[f.Name] = true
	}
	for _, m := range containerMarkers {
		if names[m.entry] {
			return Result{Detected: m.ext, Confidence: 0.9}
		}
	}
	return Result{Detected: ".zip", Confidence: 0.7}
}

// IdentifyFile reads path and classifies its content.
func IdentifyFile(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("sniff: read %s: %w", path, err)
	}
	return Identify(data), nil
}
