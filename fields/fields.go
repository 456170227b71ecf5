// Package fields locates signature and date fields in a document.
//
// When the document carries explicit signature-provider tags, each tag maps
// to one exact field (confidence 1.0) and no position is estimated, since
// the provider anchors the field itself. Without tags, the detector falls back
// to scanning for conventional signature/date idioms (underscores, labeled
// blanks, underlined runs) and synthesizes approximate positions from line
// counting. Those positions are calibration guesses, not measurements; the
// constants live in Config so callers can tune them.
package fields

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/inkmill/sigprep/tagscan"
)

// Type is the field kind exposed to downstream placement.
type Type string

const (
	TypeSignature Type = "SIGNATURE"
	TypeDate      Type = "DATE"
	TypeText      Type = "TEXT"
)

// Descriptor is one detected or synthesized field. Created per Detect call,
// never mutated afterwards.
type Descriptor struct {
	Name       string  `json:"name"`
	Type       Type    `json:"type"`
	Page       int     `json:"page"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	SourceTag  string  `json:"source_tag,omitempty"` // raw provider tag, when exact
}

// Config holds the position-estimation calibration. The defaults mirror the
// values the rest of the system was tuned against; changing them changes
// observable field placement.
type Config struct {
	LinesPerPage int          `json:"lines_per_page" yaml:"lines_per_page"` // default 50
	PageHeight   float64      `json:"page_height" yaml:"page_height"`       // default 800 units
	Margin       float64      `json:"margin" yaml:"margin"`                 // default 50 units
	LineHeight   float64      `json:"line_height" yaml:"line_height"`       // default 15 units
	IndentUnit   float64      `json:"indent_unit" yaml:"indent_unit"`       // default 8 units per space
	Logger       *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.LinesPerPage <= 0 {
		c.LinesPerPage = 50
	}
	if c.PageHeight <= 0 {
		c.PageHeight = 800
	}
	if c.Margin <= 0 {
		c.Margin = 50
	}
	if c.LineHeight <= 0 {
		c.LineHeight = 15
	}
	if c.IndentUnit <= 0 {
		c.IndentUnit = 8
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Detector scans text and optional HTML for signature/date fields.
type Detector struct {
	cfg Config
}

// New creates a Detector.
func New(cfg Config) *Detector {
	cfg.defaults()
	return &Detector{cfg: cfg}
}

// Signature and date idiom families for documents without provider tags.
var (
	signaturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)sign\s+here`),
		regexp.MustCompile(`(?i)authorized\s+signature`),
		regexp.MustCompile(`(?i)signature\s*:[ \t]*_*`),
		regexp.MustCompile(`(?i)\[signature\]`),
		regexp.MustCompile(`_{3,}`),
		regexp.MustCompile(`\.{5,}`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)date\s*:`),
		regexp.MustCompile(`__+/__+/__+`),
		regexp.MustCompile(`(?i)mm/dd/yyyy`),
		regexp.MustCompile(`(?i)dd/mm/yyyy`),
	}
)

// Detect returns field descriptors for the document. htmlBody may be empty;
// when supplied it contributes underlined-run signature candidates.
func (d *Detector) Detect(text, htmlBody string) []Descriptor {
	if descs := d.fromProviderTags(text); len(descs) > 0 {
		return descs
	}
	return d.fromHeuristics(text, htmlBody)
}

// fromProviderTags maps explicit provider tags to exact descriptors. The
// provider assigns the position, so none is estimated here.
func (d *Detector) fromProviderTags(text string) []Descriptor {
	var descs []Descriptor
	for _, tag := range tagscan.Scan(text) {
		if tag.Kind != tagscan.KindProvider {
			continue
		}
		typ := typeForSubtype(tag.Subtype)
		descs = append(descs, Descriptor{
			Name:       fmt.Sprintf("ProviderTag_%s_%d", typ, tag.Recipient),
			Type:       typ,
			Confidence: 1.0,
			SourceTag:  tag.Raw,
		})
	}
	return descs
}

func typeForSubtype(s tagscan.Subtype) Type {
	switch s {
	case tagscan.SubDate:
		return TypeDate
	case tagscan.SubText, tagscan.SubCheckbox:
		return TypeText
	default: // signature and initial both place a signing field
		return TypeSignature
	}
}

// fromHeuristics scans for signature/date idioms and synthesizes at least
// one descriptor of each type. seq is local to the call so concurrent
// analyses of different documents never share naming state.
func (d *Detector) fromHeuristics(text, htmlBody string) []Descriptor {
	var descs []Descriptor
	seq := map[Type]int{}
	next := func(t Type, prefix string) string {
		seq[t]++
		return fmt.Sprintf("%s_%d", prefix, seq[t])
	}

	sigCount := 0
	for _, re := range signaturePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			desc := d.estimate(text, loc[0], TypeSignature)
			desc.Name = next(TypeSignature, "Signature")
			desc.Confidence = 0.8
			descs = append(descs, desc)
			sigCount++
		}
	}

	dateCount := 0
	for _, re := range datePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			desc := d.estimate(text, loc[0], TypeDate)
			desc.Name = next(TypeDate, "Date")
			desc.Confidence = 0.8
			descs = append(descs, desc)
			dateCount++
		}
	}

	if htmlBody != "" {
		for i, run := range underlinedRuns(htmlBody) {
			if utf8.RuneCountInString(run) <= 10 {
				continue
			}
			descs = append(descs, Descriptor{
				Name:       next(TypeSignature, "UnderlineSignature"),
				Type:       TypeSignature,
				Page:       1,
				X:          100 + 50*float64(i),
				Y:          600,
				Width:      150,
				Height:     30,
				Confidence: 0.6,
			})
			sigCount++
		}
		for _, name := range signatureInputs(htmlBody) {
			t := TypeSignature
			if strings.Contains(strings.ToLower(name), "date") {
				t = TypeDate
			}
			desc := d.synthesize(t, "Input_"+name, seq[t])
			desc.Confidence = 0.7
			descs = append(descs, desc)
			seq[t]++
			if t == TypeDate {
				dateCount++
			} else {
				sigCount++
			}
		}
	}

	// Floor of one field per type: a document sent for signature always
	// needs somewhere to sign and date, even when no idiom matched.
	if sigCount == 0 {
		descs = append(descs, d.synthesize(TypeSignature, next(TypeSignature, "Signature"), 0))
	}
	if dateCount == 0 {
		descs = append(descs, d.synthesize(TypeDate, next(TypeDate, "Date"), 0))
	}

	return dedupeByName(descs)
}

// synthesize places the i-th default field: signatures spread horizontally,
// dates vertically, so multiple synthesized fields never overlap.
func (d *Detector) synthesize(t Type, name string, i int) Descriptor {
	desc := Descriptor{
		Name:       name,
		Type:       t,
		Page:       1,
		Width:      150,
		Height:     30,
		Confidence: 0.5,
	}
	switch t {
	case TypeDate:
		desc.X = 350
		desc.Y = 600 - 50*float64(i)
		desc.Width = 100
	default:
		desc.X = 100 + 50*float64(i)
		desc.Y = 600
	}
	return desc
}

// estimate derives an approximate page and position for a match found at
// byte offset pos, from newline counting and line indentation.
func (d *Detector) estimate(text string, pos int, t Type) Descriptor {
	linesBefore := strings.Count(text[:pos], "\n")

	page := int(math.Ceil(float64(linesBefore) / float64(d.cfg.LinesPerPage)))
	if page < 1 {
		page = 1
	}
	lineInPage := linesBefore % d.cfg.LinesPerPage

	y := d.cfg.PageHeight - d.cfg.Margin - float64(lineInPage)*d.cfg.LineHeight
	if y < d.cfg.Margin {
		y = d.cfg.Margin
	}

	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	indent := 0
	for _, r := range text[lineStart:pos] {
		if r == ' ' {
			indent++
		} else if r == '\t' {
			indent += 4
		} else {
			break
		}
	}
	x := d.cfg.Margin + float64(indent)*d.cfg.IndentUnit
	if x < 50 {
		x = 50
	}
	if x > 500 {
		x = 500
	}
	width := 150.0
	if t == TypeDate {
		// Date blanks sit to the right of their label.
		if x < 300 {
			x = 300
		}
		width = 100
	}

	return Descriptor{
		Type:   t,
		Page:   page,
		X:      x,
		Y:      y,
		Width:  width,
		Height: 30,
	}
}

func dedupeByName(descs []Descriptor) []Descriptor {
	seen := make(map[string]bool, len(descs))
	out := descs[:0]
	for _, desc := range descs {
		if seen[desc.Name] {
			continue
		}
		seen[desc.Name] = true
		out = append(out, desc)
	}
	return out
}
