package resolve

import (
	"sync"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/fingerprint"
)

// Cache remembers elements that previously resolved, keyed by native id,
// by text (or text::username) and by hash. Entries are never evicted; a
// lookup that lands on a detached or re-rendered element is a miss.
type Cache struct {
	mu     sync.Mutex
	byID   map[string]dom.Element
	byText map[string]dom.Element
	byHash map[string]dom.Element
	last   *fingerprint.Fingerprint
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		byID:   make(map[string]dom.Element),
		byText: make(map[string]dom.Element),
		byHash: make(map[string]dom.Element),
	}
}

func textKey(text, username string) string {
	if username == "" {
		return text
	}
	return text + "::" + username
}

// Store records el under every key fp supplies.
func (c *Cache) Store(fp fingerprint.Fingerprint, el dom.Element) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fp.NativeID != "" {
		c.byID[fp.NativeID] = el
	}
	if fp.Text != "" {
		c.byText[textKey(fp.Text, fp.Username)] = el
	}
	if fp.Hash != "" {
		c.byHash[fp.Hash] = el
	}
	cp := fp
	c.last = &cp
}

// Key names the index a cached candidate was found in.
type Key int

const (
	KeyID Key = iota
	KeyComposite
	KeyText
	KeyHash
)

// Lookup checks native id, text::username, text, then hash. A candidate is
// returned only if accept takes it.
func (c *Cache) Lookup(fp fingerprint.Fingerprint, accept func(dom.Element, Key) bool) (dom.Element, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type entry struct {
		m    map[string]dom.Element
		key  string
		kind Key
	}
	entries := []entry{{c.byID, fp.NativeID, KeyID}}
	if fp.Text != "" {
		if fp.Username != "" {
			entries = append(entries, entry{c.byText, textKey(fp.Text, fp.Username), KeyComposite})
		}
		entries = append(entries, entry{c.byText, fp.Text, KeyText})
	}
	entries = append(entries, entry{c.byHash, fp.Hash, KeyHash})

	for _, e := range entries {
		if e.key == "" {
			continue
		}
		if el, ok := e.m[e.key]; ok && accept(el, e.kind) {
			return el, true
		}
	}
	return nil, false
}

// Last returns the most recently stored fingerprint.
func (c *Cache) Last() (fingerprint.Fingerprint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return fingerprint.Fingerprint{}, false
	}
	return *c.last, true
}

// Len is the number of distinct keys held, across all three indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID) + len(c.byText) + len(c.byHash)
}
