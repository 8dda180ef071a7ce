package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/commentlink/idgen"
	"github.com/hazyhaar/commentlink/platform"
)

// ErrLimit is returned when the session limit is reached.
var ErrLimit = errors.New("session: too many open sessions")

// Manager owns the open sessions of a process.
type Manager struct {
	open  OpenFunc
	deps  Deps
	max   int
	newID idgen.Generator

	mu       sync.Mutex
	sessions map[string]*Session
	base     context.Context
}

// NewManager creates a manager. Sessions live until closed or until base
// is done. max <= 0 means unlimited.
func NewManager(base context.Context, open OpenFunc, deps Deps, limit int) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		open:     open,
		deps:     deps,
		max:      limit,
		newID:    idgen.Session,
		sessions: make(map[string]*Session),
		base:     base,
	}
}

// Open navigates to url and starts a session on it. Unsupported URLs are
// rejected before any page is opened.
func (m *Manager) Open(ctx context.Context, url string) (*Session, error) {
	if _, ok := platform.Identify(url); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, url)
	}
	m.mu.Lock()
	full := m.max > 0 && len(m.sessions) >= m.max
	m.mu.Unlock()
	if full {
		return nil, ErrLimit
	}

	page, err := m.open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("session: open page: %w", err)
	}
	return m.Adopt(page)
}

// Adopt starts a session on an already open page.
func (m *Manager) Adopt(page Page) (*Session, error) {
	s, err := New(m.newID(), page, m.deps)
	if err != nil {
		page.Close()
		return nil, err
	}

	m.mu.Lock()
	if m.max > 0 && len(m.sessions) >= m.max {
		m.mu.Unlock()
		page.Close()
		return nil, ErrLimit
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	s.Start(m.base)
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns the status of every open session, oldest first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(all))
	for _, s := range all {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Opened.Before(out[j].Opened) })
	return out
}

// Close closes one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return s.Close()
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range all {
		if err := s.Close(); err != nil {
			m.deps.Logger.Warn("session: close failed", "session", id, "error", err)
		}
	}
}
