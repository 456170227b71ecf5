package sniff

import "fmt"

// UnsupportedFormatError reports a file whose content matches no format
// this system handles. It carries the extension claimed by the caller and
// the leading byte signature so the failure is actionable without logs.
type UnsupportedFormatError struct {
	Ext       string
	Signature []byte
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext != "" {
		return fmt.Sprintf("sniff: unsupported format %q (signature % X)", e.Ext, e.Signature)
	}
	return fmt.Sprintf("sniff: unsupported format (signature % X)", e.Signature)
}
