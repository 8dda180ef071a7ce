// Package dom defines the page surface the resolution core works against.
//
// Two backends implement it: dom/htmldoc over a parsed HTML tree, and
// browser over a live go-rod page. The core never touches either directly,
// which keeps resolution a synchronous query over whatever the page holds
// right now.
package dom

import "context"

// Element is a handle to one element node. A backend returns the same
// handle for the same underlying node, so handles compare with ==.
type Element interface {
	// Text returns the trimmed text content of the first descendant
	// matching selector, or of the element itself when selector is empty.
	// A selector that matches nothing yields "".
	Text(selector string) string
	// Attr returns an attribute value, "" when absent.
	Attr(name string) string
	// Has reports whether any descendant matches selector.
	Has(selector string) bool
}

// Document is the live page.
type Document interface {
	// QueryAll returns every element matching selector, in document order.
	QueryAll(selector string) []Element
	// ByID returns the element with the given id, nil when absent.
	ByID(id string) Element
	// Attached reports whether el is still part of the document.
	Attached(el Element) bool
}

// Player is the control surface of an embedded media player.
type Player interface {
	// Position returns the current playback offset in seconds.
	Position(ctx context.Context) (float64, error)
	// Seek moves playback to the given offset in seconds.
	Seek(ctx context.Context, seconds int) error
}

// HighlightStyle carries the user's highlight preferences at reveal time.
type HighlightStyle struct {
	Color    string  // CSS color
	Duration float64 // seconds
}
