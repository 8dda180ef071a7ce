// Package resolve maps a fingerprint back to a live comment element.
//
// Resolution is a synchronous query over the document as it is right now.
// Tiers are tried in fixed order and the first hit wins:
//
//	cache -> native id -> text+username -> hash -> text only
//
// The engine never retries or waits; see package controller for that.
package resolve

import (
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/extract"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/platform"
)

// Tier names the strategy that produced a match.
type Tier int

const (
	TierCache Tier = iota + 1
	TierNativeID
	TierComposite
	TierHash
	TierText
)

func (t Tier) String() string {
	switch t {
	case TierCache:
		return "cache"
	case TierNativeID:
		return "native_id"
	case TierComposite:
		return "composite"
	case TierHash:
		return "hash"
	case TierText:
		return "text"
	}
	return "unknown"
}

// Match is a resolved element.
type Match struct {
	Element dom.Element
	Tier    Tier
}

// Engine resolves fingerprints against one document.
type Engine struct {
	doc    dom.Document
	cache  *Cache
	logger *slog.Logger
	scans  atomic.Int64
}

// New creates an engine. A nil cache gets a fresh one.
func New(doc dom.Document, cache *Cache, logger *slog.Logger) *Engine {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{doc: doc, cache: cache, logger: logger}
}

// Cache returns the engine's cache.
func (e *Engine) Cache() *Cache { return e.cache }

// Scans is the number of full comment scans performed so far.
func (e *Engine) Scans() int64 { return e.scans.Load() }

// Resolve looks fp up on the page. On a hit the element is stored in the
// cache under every key fp supplies; a miss leaves the cache untouched.
func (e *Engine) Resolve(fp fingerprint.Fingerprint, p platform.Profile) (Match, bool) {
	if el, ok := e.cache.Lookup(fp, e.current(fp, p)); ok {
		return e.hit(fp, el, TierCache), true
	}

	if p.NativeIDs && fp.NativeID != "" {
		if el := e.doc.ByID(fp.NativeID); el != nil {
			return e.hit(fp, el, TierNativeID), true
		}
	}

	e.scans.Add(1)
	comments := extract.All(e.doc, p, fingerprint.Media{})

	if fp.Text != "" {
		for _, c := range comments {
			if c.Fingerprint.Text != fp.Text {
				continue
			}
			if fp.Username != "" && c.Fingerprint.Username != fp.Username {
				continue
			}
			return e.hit(fp, c.Element, TierComposite), true
		}
	}

	if fp.Hash != "" {
		for _, c := range comments {
			if c.Fingerprint.Hash == fp.Hash {
				return e.hit(fp, c.Element, TierHash), true
			}
		}
	}

	if fp.Text != "" {
		for _, c := range comments {
			if c.Fingerprint.Text == fp.Text {
				return e.hit(fp, c.Element, TierText), true
			}
		}
	}

	e.logger.Debug("resolve: miss", "platform", p.Name, "hash", fp.Hash, "scanned", len(comments))
	return Match{}, false
}

// current accepts a cached element only while it is attached and still
// shows what fp describes. Elements are reused by pages that recycle nodes,
// and a key shared by several comments may point at the wrong one.
func (e *Engine) current(fp fingerprint.Fingerprint, p platform.Profile) func(dom.Element, Key) bool {
	return func(el dom.Element, k Key) bool {
		if !e.doc.Attached(el) {
			return false
		}
		if k == KeyID {
			return el.Attr("id") == fp.NativeID
		}
		text := el.Text(p.TextSelector)
		if fp.Text != "" && text != fp.Text {
			return false
		}
		if fp.Text == "" && fingerprint.HashOf(text) != fp.Hash {
			return false
		}
		return fp.Username == "" || el.Text(p.UsernameSelector) == fp.Username
	}
}

func (e *Engine) hit(fp fingerprint.Fingerprint, el dom.Element, tier Tier) Match {
	e.cache.Store(fp, el)
	e.logger.Debug("resolve: hit", "tier", tier.String(), "hash", fp.Hash)
	return Match{Element: el, Tier: tier}
}
