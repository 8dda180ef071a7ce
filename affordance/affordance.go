// Package affordance attaches a share button to every rendered comment.
package affordance

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/extract"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/platform"
)

// Marker is the class carried by every share button. A comment holding an
// element with this class is already decorated.
const Marker = "comment-share-btn"

// HashAttr carries the comment hash on the button.
const HashAttr = "data-comment-hash"

// KeyAttr carries a key unique to the button within its page. A click is
// traced back to the comment holding the button with that key, since
// comments with the same text share a hash.
const KeyAttr = "data-comment-key"

// Button styles.
const (
	StyleDefault = "default"
	StyleCompact = "compact"
)

// DefaultLabel is the button text in the default style.
const DefaultLabel = "Share"

var policy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("button", "span")
	p.AllowAttrs("class", "title", "type", "aria-label").OnElements("button", "span")
	p.AllowDataAttributes()
	return p
}()

// KeySelector matches the button carrying key.
func KeySelector(key string) string {
	return "[" + KeyAttr + "=" + strconv.Quote(key) + "]"
}

// Render builds the sanitized button markup for one comment.
func Render(style, label, hash, key string) string {
	if label == "" {
		label = DefaultLabel
	}
	text := label
	class := Marker
	if style == StyleCompact {
		text = "↗"
		class += " " + Marker + "--compact"
	}
	raw := fmt.Sprintf(`<button type="button" class="%s" title="%s" aria-label="%s" %s="%s" %s="%s"><span>%s</span></button>`,
		class,
		html.EscapeString(label),
		html.EscapeString(label),
		HashAttr, html.EscapeString(hash),
		KeyAttr, html.EscapeString(key),
		html.EscapeString(text),
	)
	return policy.Sanitize(raw)
}

// Attacher inserts markup into a comment's action bar.
type Attacher interface {
	Attach(ctx context.Context, el dom.Element, actionBar, markup string) error
}

// Decorator decorates the comments of one page.
type Decorator struct {
	doc     dom.Document
	att     Attacher
	profile platform.Profile
	label   string
	style   func() string
	logger  *slog.Logger
	seq     atomic.Int64
}

// NewDecorator creates a Decorator. style is read on every Apply so that
// option changes reach newly rendered comments.
func NewDecorator(doc dom.Document, att Attacher, p platform.Profile, label string, style func() string, logger *slog.Logger) *Decorator {
	if style == nil {
		style = func() string { return StyleDefault }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decorator{doc: doc, att: att, profile: p, label: label, style: style, logger: logger}
}

// Apply decorates every comment that has text, an action bar and no
// button yet. It returns the number of buttons attached.
func (d *Decorator) Apply(ctx context.Context) int {
	style := d.style()
	n := 0
	for _, c := range extract.All(d.doc, d.profile, fingerprint.Media{}) {
		if ctx.Err() != nil {
			break
		}
		if c.Fingerprint.Text == "" || c.Element.Has("."+Marker) || !c.Element.Has(d.profile.ActionBarSelector) {
			continue
		}
		key := strconv.FormatInt(d.seq.Add(1), 10)
		markup := Render(style, d.label, c.Fingerprint.Hash, key)
		if err := d.att.Attach(ctx, c.Element, d.profile.ActionBarSelector, markup); err != nil {
			d.logger.Warn("affordance: attach failed", "platform", d.profile.Name, "error", err)
			continue
		}
		n++
	}
	return n
}
