// Package tagscan finds and classifies brace-delimited placeholder tokens
// in document text.
//
// Three kinds of token exist:
//   - ordinary: a template variable the renderer substitutes ({clientName})
//   - provider: a placeholder reserved by the signature provider
//     ({sig_es_:signer1:signature}); never substituted locally
//   - noise: bracketed text that is neither (stray colons/asterisks)
//
// Provider tags come in several historical dialects and two brace
// conventions (single and double). Scan recognises all of them; Normalize
// rewrites the single-brace form to the canonical double-brace form.
package tagscan

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind labels a scanned token.
type Kind int

const (
	KindOrdinary Kind = iota
	KindProvider
	KindNoise
)

func (k Kind) String() string {
	switch k {
	case KindOrdinary:
		return "ordinary"
	case KindProvider:
		return "provider"
	default:
		return "noise"
	}
}

// Subtype is the provider-tag field type. Valid only when Kind is KindProvider.
type Subtype int

const (
	SubSignature Subtype = iota
	SubInitial
	SubDate
	SubText
	SubCheckbox
)

func (s Subtype) String() string {
	switch s {
	case SubInitial:
		return "initial"
	case SubDate:
		return "date"
	case SubText:
		return "text"
	case SubCheckbox:
		return "checkbox"
	default:
		return "signature"
	}
}

// BraceStyle records the brace convention a token was written in.
type BraceStyle int

const (
	BraceSingle BraceStyle = iota
	BraceDouble
)

// Tag is one classified token.
type Tag struct {
	Raw       string // full token including braces
	Body      string // token text with braces stripped
	Style     BraceStyle
	Kind      Kind
	Subtype   Subtype // meaningful only when Kind == KindProvider
	Recipient int     // 1-based signer index, 0 when not a provider tag
	Field     string  // field name for text_es_/check_es_ tags
	Start     int     // byte offset of Raw in the scanned text
	End       int     // byte offset one past the last byte of Raw
}

// Canonical returns the double-brace form of the tag. The body bytes are
// never altered, only the brace count.
func (t Tag) Canonical() string {
	return "{{" + t.Body + "}}"
}

// Provider-tag grammar, one pattern per historical dialect. Order matters:
// patterns carrying an explicit subtype come before the generic signerN
// fallback so the most specific match wins.
var providerPatterns = []struct {
	re  *regexp.Regexp
	sub Subtype
}{
	{regexp.MustCompile(`^(?:\*ES_|[Ss]ig_es_):signer(\d+)(?::signature)?$`), SubSignature},
	{regexp.MustCompile(`^esig_\w+:signer(\d+)$`), SubSignature},
	{regexp.MustCompile(`^date_es_:signer(\d+):date$`), SubDate},
	{regexp.MustCompile(`^signer(\d+):date$`), SubDate},
	{regexp.MustCompile(`^signer(\d+):signature$`), SubSignature},
	{regexp.MustCompile(`^signer(\d+):initial$`), SubInitial},
	{regexp.MustCompile(`^text_es_:signer(\d+):(\w+)$`), SubText},
	{regexp.MustCompile(`^check_es_:signer(\d+):(\w+)$`), SubCheckbox},
}

// genericSignerRe matches a bare signerN token with no punctuation at all.
// Default subtype is signature.
var genericSignerRe = regexp.MustCompile(`^\w*signer(\d+)$`)

// signerIndexRe pulls the first recipient index out of a free-form body.
var signerIndexRe = regexp.MustCompile(`signer(\d+)`)

// Scan tokenizes text and classifies every brace-delimited token. The
// result is ordered by position. Scan never mutates its input and is
// deterministic: the same text always yields the same tags.
func Scan(text string) []Tag {
	var tags []Tag
	for i := 0; i < len(text); {
		open := strings.IndexByte(text[i:], '{')
		if open < 0 {
			break
		}
		start := i + open

		double := strings.HasPrefix(text[start:], "{{")
		var body string
		var end int
		if double {
			close := strings.Index(text[start+2:], "}}")
			if close < 0 {
				// Unterminated double brace; fall through to single-brace
				// handling so {{x} still yields a token for {x}.
				double = false
			} else {
				body = text[start+2 : start+2+close]
				end = start + 2 + close + 2
			}
		}
		if !double {
			close := strings.IndexByte(text[start+1:], '}')
			if close < 0 {
				break
			}
			inner := strings.LastIndexByte(text[start+1:start+1+close], '{')
			if inner >= 0 {
				// A brace reopened before this one closed. Restart the scan
				// at the innermost opener; the outer one is malformed.
				i = start + 1 + inner
				continue
			}
			body = text[start+1 : start+1+close]
			end = start + 1 + close + 1
		}

		if strings.ContainsAny(body, "\n\r") {
			i = start + 1
			continue
		}

		t := Tag{
			Raw:   text[start:end],
			Body:  body,
			Style: BraceSingle,
			Start: start,
			End:   end,
		}
		if double {
			t.Style = BraceDouble
		}
		t.Kind, t.Subtype, t.Recipient, t.Field = classifyBody(body)
		tags = append(tags, t)
		i = end
	}
	return tags
}

// classifyBody labels a token body. Classification is total: every body is
// exactly one of ordinary, provider, or noise.
func classifyBody(body string) (Kind, Subtype, int, string) {
	for _, p := range providerPatterns {
		m := p.re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		field := ""
		if len(m) > 2 {
			field = m[2]
		}
		n, _ := strconv.Atoi(m[1])
		return KindProvider, p.sub, n, field
	}

	// Generic fallback: anything naming a signer together with a known
	// field-type suffix is still a provider tag, whatever the dialect.
	if strings.Contains(body, "signer") {
		var sub Subtype
		matched := true
		switch {
		case strings.Contains(body, ":date"):
			sub = SubDate
		case strings.Contains(body, ":initial"):
			sub = SubInitial
		case strings.Contains(body, ":signature"):
			sub = SubSignature
		default:
			matched = false
		}
		if matched {
			n := 0
			if m := signerIndexRe.FindStringSubmatch(body); m != nil {
				n, _ = strconv.Atoi(m[1])
			}
			return KindProvider, sub, n, ""
		}
	}

	if m := genericSignerRe.FindStringSubmatch(body); m != nil {
		n, _ := strconv.Atoi(m[1])
		return KindProvider, SubSignature, n, ""
	}

	if body != "" && !strings.ContainsAny(body, "*:") {
		return KindOrdinary, SubSignature, 0, ""
	}
	return KindNoise, SubSignature, 0, ""
}

// CountProviderTags returns the number of provider-classified tokens in
// text. Renderers use it to assert substitution never creates or destroys
// a provider tag.
func CountProviderTags(text string) int {
	n := 0
	for _, t := range Scan(text) {
		if t.Kind == KindProvider {
			n++
		}
	}
	return n
}

// reservedNameFragments are substrings that mark a variable name as
// provider vocabulary. Used by the bypass renderer to skip names that merely
// smell reserved, even when they are not syntactically valid provider tags.
var reservedNameFragments = []string{"signer", "sig_es", "_es_", "signature", "date_es"}

// NameLooksReserved reports whether a variable name belongs to the
// signature-provider vocabulary by substring heuristic.
func NameLooksReserved(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range reservedNameFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
