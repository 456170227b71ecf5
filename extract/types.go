package extract

// Format identifies a document type the extractor handles.
type Format string

const (
	FormatDocx Format = "docx"
	FormatDoc  Format = "doc"
	FormatPDF  Format = "pdf"
	FormatTXT  Format = "txt"
	FormatHTML Format = "html"
)

// Document is the extracted content of a file: the plain-text view used
// for tag discovery, and a styled HTML view (when the source format can
// produce one) used for heuristic field detection. Underline runs survive
// into the HTML because they usually mark the line people sign on.
type Document struct {
	Path    string   `json:"path"`
	Format  Format   `json:"format"`
	Title   string   `json:"title,omitempty"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
	Quality *Quality `json:"quality,omitempty"` // PDF extraction quality, nil otherwise
}
