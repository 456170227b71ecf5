// Package convert turns documents between office formats via an external
// converter subprocess, with PDF-output validation.
//
// The contract is deliberately narrow (bytes in, target extension, bytes
// out) so the pipeline never depends on how the conversion happens. Every
// temporary file a conversion produces is owned by this stage and removed
// before it returns.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkmill/sigprep/idgen"
	"github.com/inkmill/sigprep/sniff"
)

// Converter converts document bytes to the given target extension. srcExt
// is the caller's claim about the source format; implementations may trust
// the bytes over the claim.
type Converter interface {
	Convert(ctx context.Context, data []byte, srcExt, targetExt string) ([]byte, error)
}

// Config configures the LibreOffice converter.
type Config struct {
	// Binary is the soffice executable (default "soffice").
	Binary string `json:"binary" yaml:"binary"`
	// WorkDir hosts per-conversion temp directories (default os.TempDir).
	WorkDir string `json:"work_dir" yaml:"work_dir"`
	// Timeout bounds one subprocess run (default 90s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Binary == "" {
		c.Binary = "soffice"
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// LibreOffice converts documents by driving a headless soffice process.
type LibreOffice struct {
	cfg   Config
	newID idgen.Generator
}

// New creates a LibreOffice converter.
func New(cfg Config) *LibreOffice {
	cfg.defaults()
	return &LibreOffice{cfg: cfg, newID: idgen.NanoID(10)}
}

// Convert writes data to a scratch directory, runs the converter, and
// returns the produced bytes. The source format is sniffed from the bytes
// first; formats with no magic signature (plain text, HTML) fall back to
// the caller-supplied srcExt.
func (l *LibreOffice) Convert(ctx context.Context, data []byte, srcExt, targetExt string) ([]byte, error) {
	if sniffed := sniff.Identify(data).Detected; sniffed != "" {
		srcExt = sniffed
	} else {
		srcExt = normalizeExt(srcExt)
	}
	if srcExt == "" {
		return nil, &sniff.UnsupportedFormatError{Signature: firstBytes(data, 8)}
	}
	targetExt = normalizeExt(targetExt)

	dir, err := os.MkdirTemp(l.cfg.WorkDir, "sigprep-convert-")
	if err != nil {
		return nil, &Error{Stage: "convert", Cause: err}
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "in_"+l.newID()+srcExt)
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, &Error{Stage: "convert", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.cfg.Binary,
		"--headless", "--norestore",
		"--convert-to", strings.TrimPrefix(targetExt, "."),
		"--outdir", dir, inPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		l.cfg.Logger.Warn("convert: subprocess failed",
			"target", targetExt, "error", err, "output", truncate(string(out), 300))
		return nil, &Error{Stage: "convert", Cause: fmt.Errorf("%s %s: %w", l.cfg.Binary, targetExt, err)}
	}

	outPath := strings.TrimSuffix(inPath, srcExt) + targetExt
	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &Error{Stage: "convert", Cause: fmt.Errorf("converted file missing: %w", err)}
	}
	l.cfg.Logger.Debug("convert: done", "src", srcExt, "target", targetExt,
		"in_bytes", len(data), "out_bytes", len(result))
	return result, nil
}

// ToPDF converts a document to PDF. A direct DOC→PDF failure is recovered
// through an explicit DOC→DOCX→PDF two-step; the legacy binary importer is
// flakier than the DOCX one. The produced PDF is validated before return.
func ToPDF(ctx context.Context, c Converter, data []byte, srcExt string) ([]byte, error) {
	pdf, direct := c.Convert(ctx, data, srcExt, ".pdf")
	if direct == nil {
		if err := ValidatePDF(pdf); err != nil {
			return nil, err
		}
		return pdf, nil
	}
	if normalizeExt(srcExt) != ".doc" {
		return nil, direct
	}

	docx, err := c.Convert(ctx, data, srcExt, ".docx")
	if err != nil {
		return nil, &Error{Stage: "convert", Cause: fmt.Errorf("doc→pdf failed (%v); doc→docx fallback: %w", direct, err)}
	}
	pdf, err = c.Convert(ctx, docx, ".docx", ".pdf")
	if err != nil {
		return nil, &Error{Stage: "convert", Cause: fmt.Errorf("doc→pdf failed (%v); docx→pdf fallback: %w", direct, err)}
	}
	if err := ValidatePDF(pdf); err != nil {
		return nil, err
	}
	return pdf, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func firstBytes(data []byte, n int) []byte {
	if len(data) < n {
		n = len(data)
	}
	return data[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
