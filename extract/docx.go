package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

// extractDocx reads word/document.xml out of the container and walks its
// XML tokens, producing a plain-text view (one line per paragraph, template
// tags intact) and a minimal HTML view that preserves underline runs.
func extractDocx(path string) (title, text, htmlOut string, err error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", "", "", fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", "", "", fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", "", "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)

	var textB, htmlB strings.Builder
	var para, paraHTML strings.Builder
	var inParagraph, inText bool
	var inRunProps, runUnderlined bool

	flushParagraph := func() {
		line := para.String()
		textB.WriteString(line)
		textB.WriteByte('\n')
		htmlB.WriteString("<p>")
		htmlB.WriteString(paraHTML.String())
		htmlB.WriteString("</p>\n")
		if title == "" {
			if t := strings.TrimSpace(line); t != "" {
				title = t
			}
		}
		para.Reset()
		paraHTML.Reset()
	}

	for {
		tok, terr := decoder.Token()
		if terr != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
			case "rPr":
				inRunProps = true
			case "u":
				if inRunProps {
					runUnderlined = true
				}
			case "t":
				if inParagraph {
					inText = true
				}
			case "tab":
				if inParagraph {
					para.WriteByte('\t')
					paraHTML.WriteString("&#9;")
				}
			case "br":
				if inParagraph {
					para.WriteByte('\n')
					paraHTML.WriteString("<br/>")
				}
			}

		case xml.CharData:
			if inText {
				chunk := string(t)
				para.WriteString(chunk)
				escaped := html.EscapeString(chunk)
				if runUnderlined {
					paraHTML.WriteString("<u>")
					paraHTML.WriteString(escaped)
					paraHTML.WriteString("</u>")
				} else {
					paraHTML.WriteString(escaped)
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "rPr":
				inRunProps = false
			case "r":
				runUnderlined = false
			case "p":
				if inParagraph {
					inParagraph = false
					flushParagraph()
				}
			}
		}
	}

	return title, textB.String(), htmlB.String(), nil
}
