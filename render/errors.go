package render

import "fmt"

// SyntaxError identifiers. The pipeline inspects these to decide whether
// the bypass path can recover a failed render.
const (
	ErrIDUnopenedTag  = "unopened_tag"  // '}' with no matching '{'
	ErrIDUnclosedTag  = "unclosed_tag"  // '{' never closed
	ErrIDDuplicateTag = "duplicate_tag" // '{{{' run of opening markers
)

// SyntaxError reports malformed template markup. Tag carries the raw text
// around the offending brace so callers can act without re-parsing.
type SyntaxError struct {
	ID  string
	Tag string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("render: %s: %q", e.ID, e.Tag)
}

// validate checks brace balance over the whole document. It tolerates the
// double-brace convention but rejects a lone closer, an opener with no
// closer before end of input, and runs of three or more opening markers.
func validate(text string) error {
	depth := 0
	openAt := -1
	run := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			run++
			if run > 2 {
				return &SyntaxError{ID: ErrIDDuplicateTag, Tag: excerpt(text, i)}
			}
			if depth == 0 {
				openAt = i
			}
			if depth < 2 {
				depth++
			}
		case '}':
			run = 0
			if depth == 0 {
				return &SyntaxError{ID: ErrIDUnopenedTag, Tag: excerpt(text, i)}
			}
			depth--
			if depth == 0 {
				openAt = -1
			}
		default:
			run = 0
			if text[i] == '\n' && depth > 0 {
				// A tag cannot span lines; treat the opener as unclosed.
				return &SyntaxError{ID: ErrIDUnclosedTag, Tag: excerpt(text, openAt)}
			}
		}
	}
	if depth > 0 {
		return &SyntaxError{ID: ErrIDUnclosedTag, Tag: excerpt(text, openAt)}
	}
	return nil
}

// excerpt returns up to 40 bytes of context starting at pos, for error
// messages that name the offending tag text.
func excerpt(text string, pos int) string {
	if pos < 0 {
		pos = 0
	}
	end := pos + 40
	if end > len(text) {
		end = len(text)
	}
	return text[pos:end]
}
