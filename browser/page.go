package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/platform"
)

//go:embed page.js
var pageJS string

const (
	mutationBinding = "__commentlink_mutation"
	shareBinding    = "__commentlink_share"
)

// Page is a live Chrome tab. It implements dom.Document and the session
// page contract. Handles are assigned in the page and stay stable for the
// lifetime of the node.
type Page struct {
	rp      *rod.Page
	url     string
	profile platform.Profile
	cfg     Config
	mgr     *Manager
	router  *rod.HijackRouter

	ctx    context.Context
	cancel context.CancelFunc

	mutations chan struct{}
	clicks    chan string

	mu      sync.Mutex
	handles map[int64]*Element
	closed  bool
}

// Element is a handle on a node of a live page.
type Element struct {
	page *Page
	key  int64
}

// Open creates a tab, navigates to pageURL and installs the page script.
// The tab lives until Close, independent of ctx.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Page, error) {
	profile, ok := platform.Identify(pageURL)
	if !ok {
		return nil, fmt.Errorf("browser: open: unsupported url %s", pageURL)
	}
	b, err := m.acquire()
	if err != nil {
		return nil, err
	}

	var rp *rod.Page
	if m.cfg.Mode == Headless {
		rp, err = stealth.Page(b)
	} else {
		rp, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		m.release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	pctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		rp:        rp,
		url:       pageURL,
		profile:   profile,
		cfg:       m.cfg,
		mgr:       m,
		ctx:       pctx,
		cancel:    cancel,
		mutations: make(chan struct{}, 1),
		clicks:    make(chan string, 8),
		handles:   make(map[int64]*Element),
	}
	if len(m.cfg.ResourceBlocking) > 0 {
		p.router = blockResources(rp, m.cfg.ResourceBlocking)
	}

	if err := p.install(); err != nil {
		p.Close()
		return nil, err
	}

	navCtx, navCancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer navCancel()
	if err := rp.Context(navCtx).Navigate(pageURL); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := rp.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load", "url", pageURL, "error", err)
	}
	// The document-creation hook misses pages restored from cache.
	if _, err := rp.Context(navCtx).Eval(`() => {` + pageJS + `}`); err != nil {
		m.cfg.Logger.Warn("browser: page script", "url", pageURL, "error", err)
	}
	go p.sweepLoop()
	m.cfg.Logger.Info("browser: page open", "url", pageURL, "platform", profile.Name)
	return p, nil
}

// install registers the bindings and the page script for every document.
func (p *Page) install() error {
	for _, name := range []string{mutationBinding, shareBinding} {
		if err := (proto.RuntimeAddBinding{Name: name}).Call(p.rp); err != nil {
			return fmt.Errorf("browser: add binding %s: %w", name, err)
		}
	}
	if _, err := p.rp.EvalOnNewDocument(pageJS); err != nil {
		return fmt.Errorf("browser: install page script: %w", err)
	}

	go p.rp.Context(p.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		switch e.Name {
		case mutationBinding:
			select {
			case p.mutations <- struct{}{}:
			default:
			}
		case shareBinding:
			select {
			case p.clicks <- e.Payload:
			default:
				p.cfg.Logger.Warn("browser: share click dropped", "url", p.url)
			}
		}
	})()
	return nil
}

// URL returns the address the page was opened at.
func (p *Page) URL() string { return p.url }

// Mutations signals that nodes were added to the page.
func (p *Page) Mutations() <-chan struct{} { return p.mutations }

// Clicks delivers the key of each clicked share button.
func (p *Page) Clicks() <-chan string { return p.clicks }

// Player returns the media player on media platforms, nil elsewhere.
func (p *Page) Player() dom.Player {
	if !p.profile.Media() {
		return nil
	}
	return &Player{page: p}
}

// eval runs a JS function with a per-call timeout derived from ctx.
func (p *Page) eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	return p.rp.Context(ctx).Eval(js, args...)
}

func (p *Page) handle(key int64) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.handles[key]; ok {
		return el
	}
	el := &Element{page: p, key: key}
	p.handles[key] = el
	return el
}

// forget drops the handles of released keys. A later query for the same
// node hands out a fresh Element.
func (p *Page) forget(keys []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.handles, k)
	}
}

// sweep releases disconnected nodes on both sides of the bridge.
func (p *Page) sweep() (int, error) {
	res, err := p.eval(p.ctx, `() => window.__commentlink.sweep()`)
	if err != nil {
		return 0, fmt.Errorf("browser: sweep: %w", err)
	}
	arr := res.Value.Arr()
	keys := make([]int64, len(arr))
	for i, k := range arr {
		keys[i] = int64(k.Int())
	}
	p.forget(keys)
	return len(keys), nil
}

func (p *Page) sweepLoop() {
	t := time.NewTicker(p.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-t.C:
			n, err := p.sweep()
			if err != nil {
				p.cfg.Logger.Debug("browser: sweep failed", "url", p.url, "error", err)
				continue
			}
			if n > 0 {
				p.cfg.Logger.Debug("browser: handles released", "url", p.url, "count", n)
			}
		}
	}
}

// QueryAll implements dom.Document.
func (p *Page) QueryAll(selector string) []dom.Element {
	res, err := p.eval(p.ctx, `(sel) => Array.from(document.querySelectorAll(sel), (n) => window.__commentlink.id(n))`, selector)
	if err != nil {
		p.cfg.Logger.Debug("browser: query failed", "selector", selector, "error", err)
		return nil
	}
	keys := res.Value.Arr()
	out := make([]dom.Element, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.handle(int64(k.Int())))
	}
	return out
}

// ByID implements dom.Document.
func (p *Page) ByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	res, err := p.eval(p.ctx, `(id) => { const n = document.getElementById(id); return n ? window.__commentlink.id(n) : 0; }`, id)
	if err != nil || res.Value.Int() == 0 {
		return nil
	}
	return p.handle(int64(res.Value.Int()))
}

// Attached implements dom.Document.
func (p *Page) Attached(el dom.Element) bool {
	e, ok := el.(*Element)
	if !ok || e == nil || e.page != p {
		return false
	}
	res, err := p.eval(p.ctx, `(k) => { const n = window.__commentlink.node(k); return !!n && n.isConnected; }`, e.key)
	return err == nil && res.Value.Bool()
}

func (p *Page) own(el dom.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.page != p {
		return nil, errors.New("browser: foreign element")
	}
	return e, nil
}

// Attach implements the affordance attacher.
func (p *Page) Attach(ctx context.Context, el dom.Element, actionBar, markup string) error {
	e, err := p.own(el)
	if err != nil {
		return err
	}
	_, err = p.eval(ctx, `(k, bar, markup) => {
		const n = window.__commentlink.node(k);
		const b = n && n.querySelector(bar);
		if (!b) throw new Error("no action bar");
		b.insertAdjacentHTML("beforeend", markup);
	}`, e.key, actionBar, markup)
	if err != nil {
		return fmt.Errorf("browser: attach: %w", err)
	}
	return nil
}

// Reveal scrolls el to the center of the viewport and flashes the
// highlight for the configured duration.
func (p *Page) Reveal(ctx context.Context, el dom.Element, style dom.HighlightStyle) error {
	e, err := p.own(el)
	if err != nil {
		return err
	}
	_, err = p.eval(ctx, `(k, color, seconds) => {
		const n = window.__commentlink.node(k);
		if (!n || !n.isConnected) throw new Error("element detached");
		let st = document.getElementById("commentlink-highlight-style");
		if (!st) {
			st = document.createElement("style");
			st.id = "commentlink-highlight-style";
			document.head.appendChild(st);
		}
		st.textContent = "@keyframes commentlink-flash { 0% { background-color: " + color + "BF; } 100% { background-color: transparent; } }" +
			" .comment-highlight { animation: commentlink-flash " + seconds + "s ease-out; }";
		n.scrollIntoView({ behavior: "smooth", block: "center" });
		n.classList.add("comment-highlight");
		setTimeout(() => n.classList.remove("comment-highlight"), seconds * 1000);
	}`, e.key, style.Color, style.Duration)
	if err != nil {
		return fmt.Errorf("browser: reveal: %w", err)
	}
	return nil
}

// Nudge scrolls to a fraction of the document height.
func (p *Page) Nudge(ctx context.Context, fraction float64) error {
	_, err := p.eval(ctx, `(f) => window.scrollTo(0, document.documentElement.scrollHeight * f)`, fraction)
	if err != nil {
		return fmt.Errorf("browser: nudge: %w", err)
	}
	return nil
}

// Advance scrolls to the bottom and back to the comments section, which
// makes lazily rendered streams fetch their next page.
func (p *Page) Advance(ctx context.Context) error {
	_, err := p.eval(ctx, `(section) => {
		window.scrollTo(0, document.documentElement.scrollHeight);
		const s = section && document.querySelector(section);
		if (s) s.scrollIntoView({ block: "end" });
	}`, p.profile.CommentsSection)
	if err != nil {
		return fmt.Errorf("browser: advance: %w", err)
	}
	return nil
}

// Prepare brings the comments section into view and expands it.
func (p *Page) Prepare(ctx context.Context) error {
	if p.profile.CommentsSection == "" {
		return nil
	}
	_, err := p.eval(ctx, `(section, expand) => {
		const s = document.querySelector(section);
		if (s) s.scrollIntoView();
		const b = expand && document.querySelector(expand);
		if (b) b.click();
	}`, p.profile.CommentsSection, p.profile.ExpandButton)
	if err != nil {
		return fmt.Errorf("browser: prepare: %w", err)
	}
	return nil
}

// Present shows a share link in a transient popup and copies it to the
// clipboard. A refused clipboard is reported after the popup is shown.
func (p *Page) Present(ctx context.Context, link string) error {
	res, err := p.eval(ctx, `async (link) => {
		const box = document.createElement("div");
		box.className = "commentlink-popup";
		box.style.cssText = "position:fixed;bottom:24px;right:24px;z-index:2147483647;padding:12px 16px;background:#212121;color:#fff;border-radius:8px;font:14px sans-serif;max-width:420px;word-break:break-all;";
		box.textContent = link;
		document.body.appendChild(box);
		setTimeout(() => box.remove(), 4000);
		try {
			await navigator.clipboard.writeText(link);
			return "";
		} catch (e) {
			return String(e);
		}
	}`, link)
	if err != nil {
		return fmt.Errorf("browser: present: %w", err)
	}
	if msg := res.Value.Str(); msg != "" {
		return fmt.Errorf("browser: clipboard: %s", msg)
	}
	return nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.eval(ctx, `() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return res.Value.Str(), nil
}

// Close stops event delivery and closes the tab.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if p.router != nil {
		p.router.Stop()
	}
	err := p.rp.Close()
	p.mgr.release()
	if err != nil {
		return fmt.Errorf("browser: close tab: %w", err)
	}
	return nil
}

// Text implements dom.Element.
func (e *Element) Text(selector string) string {
	res, err := e.page.eval(e.page.ctx, `(k, sel) => {
		const n = window.__commentlink.node(k);
		if (!n) return "";
		const t = sel ? n.querySelector(sel) : n;
		return t ? (t.textContent || "").trim() : "";
	}`, e.key, selector)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// Attr implements dom.Element.
func (e *Element) Attr(name string) string {
	res, err := e.page.eval(e.page.ctx, `(k, name) => {
		const n = window.__commentlink.node(k);
		return (n && n.getAttribute(name)) || "";
	}`, e.key, name)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// Has implements dom.Element.
func (e *Element) Has(selector string) bool {
	res, err := e.page.eval(e.page.ctx, `(k, sel) => {
		const n = window.__commentlink.node(k);
		return !!(n && n.querySelector(sel));
	}`, e.key, selector)
	return err == nil && res.Value.Bool()
}
