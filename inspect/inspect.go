// Package inspect runs the sharing and resolution components over saved
// HTML: list fingerprints, resolve a shared link, decorate a page. The CLI,
// the MCP tools and the HTTP API share it.
package inspect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/hazyhaar/commentlink/affordance"
	"github.com/hazyhaar/commentlink/dom/htmldoc"
	"github.com/hazyhaar/commentlink/extract"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/resolve"
	"github.com/hazyhaar/commentlink/session"
	"github.com/hazyhaar/commentlink/sharelink"
)

// Entry is one comment found in a document.
type Entry struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Link        string                  `json:"link"`
	Preview     string                  `json:"preview,omitempty"`
}

// Report lists the comments of a document.
type Report struct {
	URL      string  `json:"url"`
	Platform string  `json:"platform"`
	Comments []Entry `json:"comments"`
}

// Resolution is the outcome of resolving a link against a document.
type Resolution struct {
	Found       bool                    `json:"found"`
	Tier        string                  `json:"tier,omitempty"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	HTML        string                  `json:"html,omitempty"`
}

// Inspector holds the markdown converter used for previews.
type Inspector struct {
	md     *converter.Converter
	logger *slog.Logger
}

// New creates an Inspector.
func New(logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		logger: logger,
	}
}

func profileFor(pageURL string) (platform.Profile, error) {
	p, ok := platform.Identify(pageURL)
	if !ok {
		return platform.Profile{}, fmt.Errorf("inspect: %w: %s", session.ErrUnsupported, pageURL)
	}
	return p, nil
}

// Scan lists every comment of markup as if it were served at pageURL. Each
// entry carries the share link the button would produce.
func (in *Inspector) Scan(markup, pageURL string, preview bool) (Report, error) {
	p, err := profileFor(pageURL)
	if err != nil {
		return Report{}, err
	}
	doc, err := htmldoc.ParseString(markup)
	if err != nil {
		return Report{}, fmt.Errorf("inspect: scan: %w", err)
	}

	media := fingerprint.ProbeMedia(context.Background(), pageURL, p, nil)
	rep := Report{URL: pageURL, Platform: p.Name, Comments: []Entry{}}
	for _, c := range extract.All(doc, p, media) {
		link, err := sharelink.Build(sharelink.Strip(pageURL), c.Fingerprint, p)
		if err != nil {
			return Report{}, fmt.Errorf("inspect: scan: %w", err)
		}
		e := Entry{Fingerprint: c.Fingerprint, Link: link}
		if el, ok := c.Element.(*htmldoc.Element); ok && preview {
			e.Preview = in.preview(el, p, pageURL)
		}
		rep.Comments = append(rep.Comments, e)
	}
	in.logger.Debug("inspect: scanned", "platform", p.Name, "comments", len(rep.Comments))
	return rep, nil
}

func (in *Inspector) preview(el interface{ HTML() string }, p platform.Profile, pageURL string) string {
	out, err := in.md.ConvertString(el.HTML(), converter.WithDomain(pageURL))
	if err != nil {
		in.logger.Debug("inspect: preview failed", "platform", p.Name, "error", err)
		return ""
	}
	return out
}

// Resolve finds the comment a shared link points at within markup. The
// link's own URL selects the platform.
func (in *Inspector) Resolve(markup, link string) (Resolution, error) {
	fp, ok, err := sharelink.Parse(link)
	if err != nil {
		return Resolution{}, fmt.Errorf("inspect: resolve: %w", err)
	}
	if !ok {
		return Resolution{}, fmt.Errorf("inspect: resolve: %w: no %s parameter", sharelink.ErrMalformed, sharelink.Param)
	}
	p, err := profileFor(link)
	if err != nil {
		return Resolution{}, err
	}
	doc, err := htmldoc.ParseString(markup)
	if err != nil {
		return Resolution{}, fmt.Errorf("inspect: resolve: %w", err)
	}

	res := Resolution{Fingerprint: fp}
	m, found := resolve.New(doc, resolve.NewCache(), in.logger).Resolve(fp, p)
	if !found {
		return res, nil
	}
	res.Found = true
	res.Tier = m.Tier.String()
	if el, ok := m.Element.(*htmldoc.Element); ok {
		res.HTML = el.HTML()
	}
	return res, nil
}

// Decorate attaches share buttons to markup and returns the new document
// with the number of buttons added.
func (in *Inspector) Decorate(ctx context.Context, markup, pageURL, style, label string) (string, int, error) {
	p, err := profileFor(pageURL)
	if err != nil {
		return "", 0, err
	}
	doc, err := htmldoc.ParseString(markup)
	if err != nil {
		return "", 0, fmt.Errorf("inspect: decorate: %w", err)
	}
	d := affordance.NewDecorator(doc, doc, p, label, func() string { return style }, in.logger)
	n := d.Apply(ctx)
	out, err := doc.HTML()
	if err != nil {
		return "", 0, fmt.Errorf("inspect: decorate: %w", err)
	}
	return out, n, nil
}
