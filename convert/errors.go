package convert

import "fmt"

// Error reports a collaborator failure during format conversion. The
// pipeline recovers some of these through fallback paths (DOC→DOCX→PDF);
// the rest propagate.
type Error struct {
	Stage string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert: %s: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
