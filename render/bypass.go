package render

import (
	"sort"
	"strings"

	"github.com/inkmill/sigprep/tagscan"
)

// Bypass is the fallback rendering path: literal find-and-replace of
// {name} for every supplied variable, skipping any name that smells like
// provider vocabulary. It cannot fail; its only correctness check is that
// the count of provider-shaped tokens is unchanged afterwards, and a
// mismatch is logged as a warning, not returned as an error.
func (r *Renderer) Bypass(doc []byte, data Data) *Result {
	text := string(doc)
	before := tagscan.CountProviderTags(text)

	// Deterministic substitution order regardless of map iteration.
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if tagscan.NameLooksReserved(name) {
			r.cfg.Logger.Debug("bypass: skipping reserved-looking variable", "name", name)
			continue
		}
		text = strings.ReplaceAll(text, "{"+name+"}", escapeValue(data[name]))
	}

	after := tagscan.CountProviderTags(text)
	if after != before {
		r.cfg.Logger.Warn("bypass: provider tag count changed after substitution",
			"before", before, "after", after)
	}

	return &Result{
		Output:             []byte(text),
		ProviderTagsBefore: before,
		ProviderTagsAfter:  after,
		Bypassed:           true,
	}
}

// RenderWithFallback drives the primary renderer and falls back to Bypass
// when the failure is tag-shape-related: the syntax error is an
// unopened/unclosed/duplicate brace, or the offending tag text itself
// matches the provider vocabulary. Any other failure propagates.
func (r *Renderer) RenderWithFallback(doc []byte, data Data) (*Result, error) {
	res, err := r.Render(doc, data)
	if err == nil {
		return res, nil
	}
	synErr, ok := err.(*SyntaxError)
	if !ok {
		return nil, err
	}
	switch synErr.ID {
	case ErrIDUnopenedTag, ErrIDUnclosedTag:
		// Tag-shape failure, recoverable.
	default:
		if !tagscan.NameLooksReserved(synErr.Tag) {
			return nil, err
		}
	}
	r.cfg.Logger.Warn("render: primary path failed, using bypass",
		"error_id", synErr.ID, "tag", synErr.Tag)
	return r.Bypass(doc, data), nil
}
