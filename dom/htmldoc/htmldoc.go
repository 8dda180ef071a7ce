// Package htmldoc implements dom.Document over a parsed HTML tree using
// goquery. It backs offline commands (scan, resolve, decorate) and every
// test that needs a page without a browser.
//
// The tree is mutable: Append and Remove model a page that keeps rendering
// after load, and each Append emits a mutation signal.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/commentlink/dom"
)

// HighlightClass is added to an element by Reveal.
const HighlightClass = "comment-highlight"

// Document is a goquery document with stable element handles.
type Document struct {
	mu        sync.Mutex
	doc       *goquery.Document
	handles   map[*html.Node]*Element
	mutations chan struct{}
}

// Element is a handle on one node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{
		doc:       doc,
		handles:   make(map[*html.Node]*Element),
		mutations: make(chan struct{}, 1),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// handle returns the unique Element for n. Caller holds d.mu.
func (d *Document) handle(n *html.Node) *Element {
	if el, ok := d.handles[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.handles[n] = el
	return el
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(selector string) []dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []dom.Element
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.handle(s.Nodes[0]))
	})
	return out
}

// ByID implements dom.Document.
func (d *Document) ByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range d.doc.Nodes {
		walk(root)
	}
	if found == nil {
		return nil
	}
	return d.handle(found)
}

// Attached implements dom.Document.
func (d *Document) Attached(el dom.Element) bool {
	e, ok := el.(*Element)
	if !ok || e == nil || e.doc != d {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attachedLocked(e.node)
}

func (d *Document) attachedLocked(n *html.Node) bool {
	root := d.doc.Nodes[0]
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Append parses fragment and appends it to every element matching
// parentSelector, then signals a mutation.
func (d *Document) Append(parentSelector, fragment string) error {
	d.mu.Lock()
	sel := d.doc.Find(parentSelector)
	if sel.Length() == 0 {
		d.mu.Unlock()
		return fmt.Errorf("htmldoc: append: no element matches %q", parentSelector)
	}
	sel.AppendHtml(fragment)
	d.mu.Unlock()

	d.signal()
	return nil
}

// Remove detaches el from the tree. Its handle stays valid but is no
// longer Attached.
func (d *Document) Remove(el dom.Element) {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
}

// HTML renders the current tree.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// Mutations delivers one signal per burst of appended content.
func (d *Document) Mutations() <-chan struct{} { return d.mutations }

func (d *Document) signal() {
	select {
	case d.mutations <- struct{}{}:
	default:
	}
}

// Attach appends markup inside the first descendant of el matching
// actionBar. It does not emit a mutation signal.
func (d *Document) Attach(_ context.Context, el dom.Element, actionBar, markup string) error {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return fmt.Errorf("htmldoc: attach: foreign element")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	bar := e.selection().Find(actionBar).First()
	if bar.Length() == 0 {
		return fmt.Errorf("htmldoc: attach: no action bar %q", actionBar)
	}
	bar.AppendHtml(markup)
	return nil
}

// Reveal marks el as highlighted. There is no viewport to scroll.
func (d *Document) Reveal(_ context.Context, el dom.Element, style dom.HighlightStyle) error {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return fmt.Errorf("htmldoc: reveal: foreign element")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attachedLocked(e.node) {
		return fmt.Errorf("htmldoc: reveal: element detached")
	}
	s := e.selection()
	s.AddClass(HighlightClass)
	s.SetAttr("data-highlight-color", style.Color)
	return nil
}

// selection wraps the node so selectors search its descendants only.
func (e *Element) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

// Text implements dom.Element.
func (e *Element) Text(selector string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	s := e.selection()
	if selector != "" {
		s = s.Find(selector).First()
	}
	return strings.TrimSpace(s.Text())
}

// Attr implements dom.Element.
func (e *Element) Attr(name string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, name)
}

// Has implements dom.Element.
func (e *Element) Has(selector string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.selection().Find(selector).Length() > 0
}

// HTML renders the element's outer HTML.
func (e *Element) HTML() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	out, err := goquery.OuterHtml(e.selection())
	if err != nil {
		return ""
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
