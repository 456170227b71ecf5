package tagscan

import "strings"

// Normalize rewrites every single-brace provider tag in text to its
// canonical double-brace form. Ordinary and noise tokens pass through
// byte-for-byte, as does everything between tokens. Normalize is
// idempotent: already-canonical text comes back unchanged.
func Normalize(text string) string {
	tags := Scan(text)

	var changed bool
	for _, t := range tags {
		if t.Kind == KindProvider && t.Style == BraceSingle {
			changed = true
			break
		}
	}
	if !changed {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 4*len(tags))
	prev := 0
	for _, t := range tags {
		b.WriteString(text[prev:t.Start])
		if t.Kind == KindProvider && t.Style == BraceSingle {
			b.WriteString(t.Canonical())
		} else {
			b.WriteString(t.Raw)
		}
		prev = t.End
	}
	b.WriteString(text[prev:])
	return b.String()
}
