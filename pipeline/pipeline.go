// Package pipeline wires the preparation stages into the two operations the
// service exposes: Prepare (ingest, render, detect fields, persist) and
// Send (upload and submit for signature).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkmill/sigprep/convert"
	"github.com/inkmill/sigprep/extract"
	"github.com/inkmill/sigprep/fields"
	"github.com/inkmill/sigprep/provider"
	"github.com/inkmill/sigprep/render"
	"github.com/inkmill/sigprep/store"
	"github.com/inkmill/sigprep/submit"
	"github.com/inkmill/sigprep/tagscan"
)

// Metadata keys written during preparation.
const (
	metaPreparedPath = "prepared_path"
	metaSourceFormat = "source_format"
	metaProviderTags = "provider_tag_count"
	metaFieldCount   = "field_count"
	metaRenderBypass = "render_bypassed"
)

// Uploader is the slice of the provider client Prepare's counterpart Send
// needs for document upload.
type Uploader interface {
	UploadTransient(ctx context.Context, filename string, data []byte) (string, error)
}

// Sender drives the resilient submission of one prepared document.
type Sender interface {
	Send(ctx context.Context, doc *store.Document, transientDocID string, opts provider.Options) submit.Outcome
}

// Recorder receives timing and outcome datapoints. Optional.
type Recorder interface {
	Record(name string, value float64, unit string, labels map[string]string)
	RecordDuration(name string, d time.Duration, labels map[string]string)
}

// Config configures a Pipeline.
type Config struct {
	// OutputDir hosts prepared artifacts (default os.TempDir).
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	// ConvertToPDF converts the rendered document to PDF before it is
	// stored as the prepared artifact.
	ConvertToPDF bool `json:"convert_to_pdf" yaml:"convert_to_pdf"`

	Extract extract.Config `json:"extract" yaml:"extract"`
	Render  render.Config  `json:"-" yaml:"-"`
	Fields  fields.Config  `json:"fields" yaml:"fields"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.OutputDir == "" {
		c.OutputDir = os.TempDir()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Deps are the collaborators a Pipeline drives. Store is required;
// Converter may be nil when no conversion is configured, and Uploader and
// Sender may be nil when only Prepare is used.
type Deps struct {
	Store     *store.Store
	Converter convert.Converter
	Uploader  Uploader
	Sender    Sender
	Metrics   Recorder
}

// Pipeline runs document preparation and submission.
type Pipeline struct {
	cfg       Config
	deps      Deps
	extractor *extract.Extractor
	renderer  *render.Renderer
	detector  *fields.Detector
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	cfg.defaults()
	if cfg.Extract.Logger == nil {
		cfg.Extract.Logger = cfg.Logger
	}
	if cfg.Render.Logger == nil {
		cfg.Render.Logger = cfg.Logger
	}
	if cfg.Fields.Logger == nil {
		cfg.Fields.Logger = cfg.Logger
	}
	return &Pipeline{
		cfg:       cfg,
		deps:      deps,
		extractor: extract.New(cfg.Extract),
		renderer:  render.New(cfg.Render),
		detector:  fields.New(cfg.Fields),
	}
}

// PrepareResult is everything Prepare produced for one document.
type PrepareResult struct {
	Document *store.Document     `json:"document"`
	Rendered *render.Result      `json:"-"`
	Fields   []fields.Descriptor `json:"fields"`
	Source   *extract.Document   `json:"-"`

	PreparedPath string `json:"prepared_path"`
}

// Prepare ingests a document file, renders its template variables, detects
// signature fields, and persists the record ready for submission.
//
// Legacy .doc input is converted to .docx and re-extracted before the rest
// of the pipeline runs. Template text is normalized so single-brace
// provider tags reach the renderer in canonical double-brace form.
func (p *Pipeline) Prepare(ctx context.Context, path string, data render.Data, recipients []store.Recipient) (*PrepareResult, error) {
	log := p.cfg.Logger.With("path", path)
	start := time.Now()

	format, err := p.extractor.Detect(path)
	if err != nil {
		return nil, &Error{Stage: StageDetect, Cause: err}
	}

	srcPath := path
	if format == extract.FormatDoc {
		srcPath, err = p.convertLegacyDoc(ctx, path)
		if err != nil {
			return nil, &Error{Stage: StageConvert, Cause: err}
		}
		defer os.Remove(srcPath)
		log.Info("pipeline: legacy .doc converted", "converted_path", srcPath)
	}

	src, err := p.extractor.Extract(ctx, srcPath)
	if err != nil {
		return nil, &Error{Stage: StageExtract, Cause: err}
	}
	if src.Quality != nil && !src.Quality.Usable() {
		log.Warn("pipeline: low extraction quality, field positions will be synthesized",
			"chars_per_page", src.Quality.CharsPerPage,
			"printable_ratio", src.Quality.PrintableRatio)
	}

	normalized := tagscan.Normalize(src.Text)
	rendered, err := p.renderer.RenderWithFallback([]byte(normalized), data)
	if err != nil {
		return nil, &Error{Stage: StageRender, Cause: err}
	}

	detected := p.detector.Detect(string(rendered.Output), src.HTML)

	doc, err := p.deps.Store.CreateDocument(ctx, docName(src, path), path, recipients)
	if err != nil {
		return nil, &Error{Stage: StagePersist, Cause: err}
	}

	preparedPath, err := p.writePrepared(ctx, doc.ID, srcPath, src, rendered)
	if err != nil {
		return nil, &Error{Stage: StageConvert, Cause: err}
	}

	meta := map[string]string{
		metaPreparedPath: preparedPath,
		metaSourceFormat: string(src.Format),
		metaProviderTags: fmt.Sprint(rendered.ProviderTagsAfter),
		metaFieldCount:   fmt.Sprint(len(detected)),
	}
	if rendered.Bypassed {
		meta[metaRenderBypass] = "true"
	}
	if err := p.deps.Store.MergeMetadata(ctx, doc.ID, meta); err != nil {
		return nil, &Error{Stage: StagePersist, Cause: err}
	}
	if err := p.deps.Store.UpdateStatus(ctx, doc.ID, store.StatusReadyForSignature); err != nil {
		return nil, &Error{Stage: StagePersist, Cause: err}
	}
	doc, err = p.deps.Store.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, &Error{Stage: StagePersist, Cause: err}
	}

	log.Info("pipeline: prepared",
		"document_id", doc.ID,
		"format", src.Format,
		"provider_tags", rendered.ProviderTagsAfter,
		"fields", len(detected),
		"bypassed", rendered.Bypassed)
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordDuration("prepare_duration", time.Since(start),
			map[string]string{"format": string(src.Format)})
	}

	return &PrepareResult{
		Document:     doc,
		Rendered:     rendered,
		Fields:       detected,
		Source:       src,
		PreparedPath: preparedPath,
	}, nil
}

// Send uploads a prepared document and submits it for signature. The
// document must be ready_for_signature; a record already sent is refused
// rather than submitted twice.
func (p *Pipeline) Send(ctx context.Context, documentID string, opts provider.Options) (submit.Outcome, error) {
	doc, err := p.deps.Store.GetDocument(ctx, documentID)
	if err != nil {
		return submit.Outcome{}, &Error{Stage: StageSend, Cause: err}
	}
	if doc == nil {
		return submit.Outcome{}, &Error{Stage: StageSend, Cause: fmt.Errorf("%s: %w", documentID, ErrNotFound)}
	}
	switch doc.Status {
	case store.StatusReadyForSignature:
	case store.StatusSentForSignature:
		return submit.Outcome{}, &Error{Stage: StageSend, Cause: fmt.Errorf("%s: %w", documentID, ErrAlreadySent)}
	default:
		return submit.Outcome{}, &Error{Stage: StageSend, Cause: fmt.Errorf("%s is %s: %w", documentID, doc.Status, ErrNotReady)}
	}
	if len(doc.Recipients) == 0 {
		return submit.Outcome{}, &Error{Stage: StageSend, Cause: fmt.Errorf("document %s has no recipients", documentID)}
	}

	preparedPath := doc.Metadata[metaPreparedPath]
	if preparedPath == "" {
		preparedPath = doc.Path
	}
	content, err := os.ReadFile(preparedPath)
	if err != nil {
		return submit.Outcome{}, &Error{Stage: StageSend, Cause: err}
	}

	transientID, err := p.deps.Uploader.UploadTransient(ctx, filepath.Base(preparedPath), content)
	if err != nil {
		return submit.Outcome{}, &Error{Stage: StageUpload, Cause: err}
	}

	outcome := p.deps.Sender.Send(ctx, doc, transientID, opts)
	if p.deps.Metrics != nil {
		p.deps.Metrics.Record("submission_outcome", 1, "count",
			map[string]string{"status": string(outcome.Status)})
	}
	return outcome, nil
}

// convertLegacyDoc converts a .doc file to .docx in the output directory.
func (p *Pipeline) convertLegacyDoc(ctx context.Context, path string) (string, error) {
	if p.deps.Converter == nil {
		return "", fmt.Errorf("legacy .doc input but no converter configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	out, err := p.deps.Converter.Convert(ctx, data, ".doc", ".docx")
	if err != nil {
		return "", err
	}
	dst := filepath.Join(p.cfg.OutputDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".docx")
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// writePrepared stores the prepared artifact. PDF sources pass through
// byte-for-byte: their text is scanned for tags and fields but never
// rewritten. Other formats store the rendered output, converted to PDF
// when configured.
func (p *Pipeline) writePrepared(ctx context.Context, docID, srcPath string, src *extract.Document, rendered *render.Result) (string, error) {
	if src.Format == extract.FormatPDF {
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return "", err
		}
		dst := filepath.Join(p.cfg.OutputDir, docID+".pdf")
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", err
		}
		return dst, nil
	}

	output := rendered.Output
	ext := ".txt"
	if p.cfg.ConvertToPDF {
		srcExt := ".txt"
		if src.Format == extract.FormatHTML {
			srcExt = ".html"
		}
		pdf, err := convert.ToPDF(ctx, p.deps.Converter, output, srcExt)
		if err != nil {
			return "", err
		}
		output = pdf
		ext = ".pdf"
	}
	dst := filepath.Join(p.cfg.OutputDir, docID+ext)
	if err := os.WriteFile(dst, output, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

func docName(src *extract.Document, path string) string {
	if t := strings.TrimSpace(src.Title); t != "" {
		return t
	}
	return filepath.Base(path)
}
