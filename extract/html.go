package extract

import (
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// sanitizer strips scripts, event handlers, and embedded content while
// keeping the structural and underline markup the field detector reads.
var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("u", "ins")
	p.AllowAttrs("style").OnElements("span", "p", "div")
	p.AllowAttrs("type", "name", "value").OnElements("input")
	p.AllowElements("input")
	return p
}()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// extractHTMLFile reads an HTML document, sanitizes it, and derives a
// plain-text view via markdown conversion. When the markdown converter
// chokes on the input, a bare DOM text walk is the fallback.
func extractHTMLFile(path string) (title, text, htmlOut string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", "", err
	}

	clean := sanitizer.Sanitize(string(data))

	// Isolate the agreement body when the markup carries chrome around it.
	body := clean
	if doc, perr := html.Parse(strings.NewReader(clean)); perr == nil {
		if main := mainContent(doc); main != nil {
			if rendered := renderNode(main); rendered != "" {
				body = rendered
			}
		}
	}

	md, err := mdConverter.ConvertString(body)
	if err == nil && strings.TrimSpace(md) != "" {
		text = md
	} else {
		text = domText(body)
	}

	title = htmlTitle(string(data))
	return title, text, clean, nil
}

// htmlTitle extracts the <title> text from the original (pre-sanitize)
// markup; bluemonday drops head elements.
func htmlTitle(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				return strings.TrimSpace(n.FirstChild.Data)
			}
			return ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}

// domText collects visible text from sanitized markup, one fragment per
// text node.
func domText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
