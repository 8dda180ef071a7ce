package htmldoc

import (
	"context"
	"sync"

	"github.com/hazyhaar/commentlink/dom"
)

// Page presents a Document at a URL as a static page. Scrolling and
// expanding do nothing, there is no player, and reveals are recorded.
type Page struct {
	*Document
	url string

	mu      sync.Mutex
	reveals []dom.Element
	nudges  []float64
	closed  bool
}

// NewPage wraps doc as the page at url.
func NewPage(doc *Document, url string) *Page {
	return &Page{Document: doc, url: url}
}

// URL returns the page address.
func (p *Page) URL() string { return p.url }

// Player returns nil; static pages carry no media.
func (p *Page) Player() dom.Player { return nil }

// Reveal highlights el and records it.
func (p *Page) Reveal(ctx context.Context, el dom.Element, style dom.HighlightStyle) error {
	if err := p.Document.Reveal(ctx, el, style); err != nil {
		return err
	}
	p.mu.Lock()
	p.reveals = append(p.reveals, el)
	p.mu.Unlock()
	return nil
}

// Revealed lists every element revealed so far.
func (p *Page) Revealed() []dom.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.Element(nil), p.reveals...)
}

// Nudge records the requested scroll position.
func (p *Page) Nudge(_ context.Context, fraction float64) error {
	p.mu.Lock()
	p.nudges = append(p.nudges, fraction)
	p.mu.Unlock()
	return nil
}

// Nudges lists the recorded scroll positions.
func (p *Page) Nudges() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.nudges...)
}

// Advance is a no-op.
func (p *Page) Advance(context.Context) error { return nil }

// Prepare is a no-op.
func (p *Page) Prepare(context.Context) error { return nil }

// Close marks the page closed.
func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
