package convert

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ValidatePDF checks that data is a readable PDF with at least one page.
// Converter output occasionally truncates when the subprocess is killed
// mid-write; a structural read catches that before the bytes go anywhere.
func ValidatePDF(data []byte) error {
	n, err := PageCount(data)
	if err != nil {
		return &Error{Stage: "pdf-validate", Cause: err}
	}
	if n < 1 {
		return &Error{Stage: "pdf-validate", Cause: fmt.Errorf("pdf has no pages")}
	}
	return nil
}

// PageCount returns the number of pages in a PDF byte buffer.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pdfCtx.PageCount, nil
}
