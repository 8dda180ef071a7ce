// Package extract reads every comment currently rendered on a page into
// fingerprints. Each call queries the live document; nothing is cached.
package extract

import (
	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/platform"
)

// Comment pairs a comment root with the fingerprint read from it.
type Comment struct {
	Element     dom.Element
	Fingerprint fingerprint.Fingerprint
}

// All returns the comments matching the profile's root selector, in
// document order.
func All(doc dom.Document, p platform.Profile, m fingerprint.Media) []Comment {
	els := doc.QueryAll(p.CommentSelector)
	out := make([]Comment, 0, len(els))
	for _, el := range els {
		out = append(out, Comment{Element: el, Fingerprint: fingerprint.Build(el, p, m)})
	}
	return out
}

// Count returns the number of comment roots without reading their fields.
func Count(doc dom.Document, p platform.Profile) int {
	return len(doc.QueryAll(p.CommentSelector))
}
