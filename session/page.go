package session

import (
	"context"

	"github.com/hazyhaar/commentlink/dom"
)

// Page is a rendered page a session works on.
type Page interface {
	dom.Document

	// URL is the address the page was opened at.
	URL() string
	// Player returns the embedded media player, nil when absent.
	Player() dom.Player
	// Mutations signals content growth.
	Mutations() <-chan struct{}

	// Attach inserts markup into a comment's action bar.
	Attach(ctx context.Context, el dom.Element, actionBar, markup string) error
	// Reveal scrolls el into view and highlights it.
	Reveal(ctx context.Context, el dom.Element, style dom.HighlightStyle) error
	// Nudge scrolls to a fraction of the page height.
	Nudge(ctx context.Context, fraction float64) error
	// Advance pushes a lazily rendered comment stream to load more.
	Advance(ctx context.Context) error
	// Prepare brings the comment stream into view before a search.
	Prepare(ctx context.Context) error

	Close() error
}

// ClickSource is implemented by pages that report share button clicks.
// Each value is the key carried by the clicked button (affordance.KeyAttr).
type ClickSource interface {
	Clicks() <-chan string
}

// Presenter is implemented by pages that can show a share link to the
// user, typically copying it to the clipboard.
type Presenter interface {
	Present(ctx context.Context, link string) error
}

// OpenFunc navigates to url and returns the rendered page.
type OpenFunc func(ctx context.Context, url string) (Page, error)
