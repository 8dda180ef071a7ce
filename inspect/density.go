package inspect

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// density scores how content-like the matched nodes are: text per byte of
// markup, scaled up for longer text and down for text inside links. Comment
// containers score well; navigation and button rows do not.
func density(sel *goquery.Selection) float64 {
	var total float64
	sel.Each(func(_ int, s *goquery.Selection) {
		total += nodeDensity(s.Nodes[0])
	})
	if n := sel.Length(); n > 0 {
		return total / float64(n)
	}
	return 0
}

func nodeDensity(n *html.Node) float64 {
	text, linkText := textLengths(n)
	if text == 0 {
		return 0
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil || buf.Len() == 0 {
		return 0
	}
	linkDens := float64(linkText) / float64(text)
	if linkDens > 0.5 {
		return 0
	}
	return float64(text) / float64(buf.Len()) * logScale(text) * (1 - linkDens)
}

// textLengths returns the length of all trimmed text under n and of the
// part inside <a> elements. Script and style bodies are skipped.
func textLengths(n *html.Node) (all, inLinks int) {
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.A:
				inLink = true
			}
		}
		if n.Type == html.TextNode {
			l := len(strings.TrimSpace(n.Data))
			all += l
			if inLink {
				inLinks += l
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(n, false)
	return all, inLinks
}

func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 100; v /= 2 {
		scale++
	}
	return scale
}

// commonAncestor returns the deepest element containing every node of sel.
func commonAncestor(sel *goquery.Selection) *html.Node {
	if sel.Length() == 0 {
		return nil
	}
	anc := sel.Nodes[0].Parent
	for _, n := range sel.Nodes[1:] {
		for anc != nil && !contains(anc, n) {
			anc = anc.Parent
		}
	}
	for anc != nil && anc.Type != html.ElementNode {
		anc = anc.Parent
	}
	return anc
}

func contains(anc, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}
