package fields

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlPolicy keeps only the structural/styling markup the detector cares
// about. Everything else (scripts, event handlers, embedded content) is
// stripped before parsing.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("u", "ins")
	p.AllowAttrs("style").OnElements("span", "p", "div")
	p.AllowAttrs("type", "name").OnElements("input")
	p.AllowElements("input")
	return p
}()

var underlineStyleRe = regexp.MustCompile(`(?i)text-decoration\s*:\s*underline`)

// underlinedRuns returns the text content of every underlined element in
// the HTML body: <u>, <ins>, and any node styled text-decoration:underline.
// Underlined runs in signature blocks are usually the line people sign on.
func underlinedRuns(body string) []string {
	clean := htmlPolicy.Sanitize(body)
	doc, err := html.Parse(strings.NewReader(clean))
	if err != nil {
		return nil
	}

	var runs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isUnderlined(n) {
			if text := collectText(n); text != "" {
				runs = append(runs, text)
			}
			return // nested underlines count once
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return runs
}

func isUnderlined(n *html.Node) bool {
	if n.DataAtom == atom.U || n.DataAtom == atom.Ins {
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "style" && underlineStyleRe.MatchString(a.Val) {
			return true
		}
	}
	return false
}

// signatureInputs returns the name attributes of <input> elements whose
// type or name suggests a signature or date field.
func signatureInputs(body string) []string {
	clean := htmlPolicy.Sanitize(body)
	doc, err := html.Parse(strings.NewReader(clean))
	if err != nil {
		return nil
	}

	var names []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Input {
			var name string
			for _, a := range n.Attr {
				if a.Key == "name" {
					name = a.Val
				}
			}
			lower := strings.ToLower(name)
			if strings.Contains(lower, "sign") || strings.Contains(lower, "date") {
				names = append(names, name)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return names
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
