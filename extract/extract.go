// Package extract produces plain text and styled HTML from document files.
//
// Formats: .docx (zip container, word/document.xml walked directly), .pdf
// (content-stream text extraction with a quality score), .txt (whitespace
// normalization), .html (sanitized, with a markdown-derived text view).
// Legacy .doc is not parsed here: callers convert it to .docx first and
// re-extract, which is the recovery path for that collaborator failure.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkmill/sigprep/sniff"
)

// Config configures an Extractor.
type Config struct {
	// MaxFileSize is the largest file accepted (default 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor dispatches extraction by detected format.
type Extractor struct {
	cfg Config
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg}
}

// Detect classifies a file, trusting content sniffing over the extension
// when the two disagree.
func (e *Extractor) Detect(path string) (Format, error) {
	res, err := sniff.IdentifyFile(path)
	if err != nil {
		return "", err
	}
	if res.Confidence >= 0.9 {
		switch res.Detected {
		case ".docx":
			return FormatDocx, nil
		case ".doc":
			return FormatDoc, nil
		case ".pdf":
			return FormatPDF, nil
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return FormatDocx, nil
	case ".doc":
		return FormatDoc, nil
	case ".pdf":
		return FormatPDF, nil
	case ".txt", ".text":
		return FormatTXT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", &sniff.UnsupportedFormatError{Ext: filepath.Ext(path), Signature: nil}
	}
}

// Extract parses a document into its text and HTML views.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("extract: stat %s: %w", path, err)
	}
	if info.Size() > e.cfg.MaxFileSize {
		return nil, fmt.Errorf("extract: file too large: %d bytes (max %d)", info.Size(), e.cfg.MaxFileSize)
	}

	format, err := e.Detect(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{Path: path, Format: format}
	switch format {
	case FormatDocx:
		doc.Title, doc.Text, doc.HTML, err = extractDocx(path)
	case FormatPDF:
		doc.Title, doc.Text, doc.Quality, err = extractPDF(path)
	case FormatTXT:
		doc.Text, err = extractText(path)
	case FormatHTML:
		doc.Title, doc.Text, doc.HTML, err = extractHTMLFile(path)
	case FormatDoc:
		return nil, &Error{Stage: "extract", Cause: fmt.Errorf("legacy .doc requires conversion to .docx first")}
	default:
		return nil, &sniff.UnsupportedFormatError{Ext: string(format)}
	}
	if err != nil {
		return nil, &Error{Stage: "extract", Cause: err}
	}

	e.cfg.Logger.Debug("extract: done", "path", path, "format", format,
		"text_bytes", len(doc.Text), "html_bytes", len(doc.HTML))
	return doc, nil
}

// Error reports a collaborator failure during content extraction.
type Error struct {
	Stage string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
