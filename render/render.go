// Package render substitutes ordinary template variables in document text
// while round-tripping signature-provider tags untouched.
//
// The primary path is a two-pass classify-then-protect renderer: tagscan
// labels every token first, then only ordinary spans are replaced. Provider
// tags are emitted in canonical double-brace form with their body bytes
// intact. When the primary path rejects a document for tag-shape reasons,
// the bypass path performs best-effort literal substitution instead.
package render

import (
	"fmt"
	"html"
	"log/slog"

	"github.com/inkmill/sigprep/tagscan"
)

// Data maps variable names to caller-supplied scalar values. Nil values
// render as the empty string.
type Data map[string]any

// Result is the outcome of a successful render.
type Result struct {
	Output             []byte
	ProviderTagsBefore int
	ProviderTagsAfter  int
	MissingVariables   []string // ordinary tokens with no value supplied
	Bypassed           bool     // true when the bypass path produced Output
}

// Config configures a Renderer.
type Config struct {
	// Logger for warnings on the bypass path.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer substitutes ordinary variables in document text.
type Renderer struct {
	cfg Config
}

// New creates a Renderer with the given configuration.
func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// Render is the primary rendering path. It validates brace balance, then
// replaces ordinary tokens with HTML-entity-escaped values. Provider tags
// come out in canonical double-brace form, body bytes unchanged. Unresolved
// ordinary tokens are left in place and reported via MissingVariables.
//
// A malformed document (brace opened but never closed, or closed without
// opening) fails with a *SyntaxError naming the offending tag.
func (r *Renderer) Render(doc []byte, data Data) (*Result, error) {
	text := string(doc)
	if err := validate(text); err != nil {
		return nil, err
	}

	before := tagscan.CountProviderTags(text)
	tags := tagscan.Scan(text)

	var out []byte
	var missing []string
	prev := 0
	for _, t := range tags {
		out = append(out, text[prev:t.Start]...)
		switch t.Kind {
		case tagscan.KindProvider:
			out = append(out, t.Canonical()...)
		case tagscan.KindOrdinary:
			if v, ok := data[t.Body]; ok {
				out = append(out, escapeValue(v)...)
			} else {
				missing = append(missing, t.Body)
				out = append(out, t.Raw...)
			}
		default: // noise: reported by Scan, never substituted
			out = append(out, t.Raw...)
		}
		prev = t.End
	}
	out = append(out, text[prev:]...)

	return &Result{
		Output:             out,
		ProviderTagsBefore: before,
		ProviderTagsAfter:  tagscan.CountProviderTags(string(out)),
		MissingVariables:   missing,
	}, nil
}

// escapeValue formats a template value and escapes the HTML entities
// & < > " '. Nil renders as the empty string, not the literal "null".
func escapeValue(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	return html.EscapeString(s)
}
