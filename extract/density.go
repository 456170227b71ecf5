package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// mainContent isolates the agreement body from a parsed HTML document.
// Documents forwarded by mail clients or exported from web editors arrive
// wrapped in navigation chrome and footers; scanning those for tags and
// signature idioms produces junk fields. Semantic landmarks win when
// present, otherwise the subtree with the highest text-to-markup ratio.
// Returns nil when nothing stands out, in which case the caller should
// use the whole document.
func mainContent(doc *html.Node) *html.Node {
	for _, n := range contentLandmarks(doc) {
		if !isBoilerplate(n) && len(nodeText(n)) >= minContentLen {
			return n
		}
	}
	return densestNode(doc)
}

const minContentLen = 80

// contentLandmarks returns <main>, <article>, and role=main elements in
// document order.
func contentLandmarks(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Main, n.DataAtom == atom.Article:
				out = append(out, n)
				return
			case attrVal(n, "role") == "main":
				out = append(out, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// densestNode scores container elements by text density, penalizing
// link-heavy regions. Navigation blocks are mostly anchors; contract
// prose is not.
func densestNode(doc *html.Node) *html.Node {
	var best *html.Node
	var bestScore float64

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isBoilerplate(n) {
			return
		}
		if n.Type == html.ElementNode && isContainerTag(n.DataAtom) {
			text := nodeText(n)
			if len(text) >= minContentLen {
				markup := renderNode(n)
				linkDens := 0.0
				if lt := linkText(n); len(text) > 0 {
					linkDens = float64(len(lt)) / float64(len(text))
				}
				if linkDens <= 0.5 {
					score := float64(len(text)) / float64(max(len(markup), 1)) * (1 - linkDens)
					if score > bestScore {
						bestScore = score
						best = n
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

func isContainerTag(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Td, atom.Body:
		return true
	}
	return false
}

// isBoilerplate flags navigation, footers, and similar chrome by tag or
// by the usual class/id naming.
func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Aside, atom.Header:
		return true
	}
	hint := strings.ToLower(attrVal(n, "class") + " " + attrVal(n, "id"))
	for _, frag := range []string{"nav", "footer", "sidebar", "menu", "banner", "unsubscribe"} {
		if strings.Contains(hint, frag) {
			return true
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func linkText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			sb.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(n, false)
	return sb.String()
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
