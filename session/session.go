// Package session ties the sharing and resolution components to one open
// page: it decorates comments, keeps decorations current as the page
// grows, and runs shared-comment searches from links and messages.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/commentlink/affordance"
	"github.com/hazyhaar/commentlink/config"
	"github.com/hazyhaar/commentlink/controller"
	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/extract"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/loader"
	"github.com/hazyhaar/commentlink/metrics"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/resolve"
	"github.com/hazyhaar/commentlink/sharelink"
	"github.com/hazyhaar/commentlink/watcher"
)

var (
	// ErrUnsupported is returned for pages on no known platform.
	ErrUnsupported = errors.New("session: unsupported platform")
	// ErrNotFound is returned for unknown session ids or comments.
	ErrNotFound = errors.New("session: not found")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")
)

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Store      *config.Store
	Controller controller.Config
	Loader     loader.Config
	Watcher    watcher.Config
	Label      string // share button label
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string                   `json:"id"`
	URL       string                   `json:"url"`
	Platform  string                   `json:"platform"`
	Enabled   bool                     `json:"enabled"`
	State     string                   `json:"state"`
	Comments  int                      `json:"comments"`
	Opened    time.Time                `json:"opened"`
	LastFound *fingerprint.Fingerprint `json:"last_found,omitempty"`
}

// Session owns one page.
type Session struct {
	id      string
	page    Page
	profile platform.Profile
	deps    Deps
	opened  time.Time
	logger  *slog.Logger

	engine    *resolve.Engine
	ctrl      *controller.Controller
	decorator *affordance.Decorator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a session for page. It does not touch the page until Start.
func New(id string, page Page, deps Deps) (*Session, error) {
	p, ok := platform.Identify(page.URL())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, page.URL())
	}
	if deps.Store == nil {
		deps.Store = config.NewStore(config.Options{}, deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("session", id, "platform", p.Name)

	s := &Session{
		id:      id,
		page:    page,
		profile: p,
		deps:    deps,
		opened:  time.Now(),
		logger:  logger,
	}
	s.engine = resolve.New(page, resolve.NewCache(), logger)

	cdeps := controller.Deps{
		Profile:  p,
		Resolver: s.engine,
		Page:     page,
		Player:   page.Player(),
		Style:    func() dom.HighlightStyle { return deps.Store.Current().Highlight() },
		Logger:   logger,
	}
	if p.Progressive {
		ld := loader.New(stream{page: page, profile: p}, deps.Loader, logger)
		ld.OnComplete = func(r loader.Result) { deps.Metrics.Load(r.Iterations) }
		cdeps.Loader = ld
	}
	s.ctrl = controller.New(deps.Controller, cdeps)

	s.decorator = affordance.NewDecorator(page, page, p, deps.Label,
		func() string { return deps.Store.Current().ButtonStyle }, logger)
	return s, nil
}

// stream adapts a page to loader.Source.
type stream struct {
	page    Page
	profile platform.Profile
}

func (s stream) Count() int                        { return extract.Count(s.page, s.profile) }
func (s stream) Advance(ctx context.Context) error { return s.page.Advance(ctx) }

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Profile returns the platform profile of the page.
func (s *Session) Profile() platform.Profile { return s.profile }

// Engine returns the session's resolution engine.
func (s *Session) Engine() *resolve.Engine { return s.engine }

// Start decorates the page, starts the background loops and, when the page
// URL carries a shared comment, starts searching for it. The session runs
// until Close or until parent is done.
func (s *Session) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.deps.Metrics.SessionOpened()
	s.logger.Info("session: started", "url", s.page.URL())

	s.decorate(s.ctx)
	s.goLoop(func(ctx context.Context) {
		w := watcher.New(s.deps.Watcher, s.page.Mutations(), s.decorate, s.logger)
		w.Run(ctx)
	})
	updates, unsubscribe := s.deps.Store.Subscribe()
	s.goLoop(func(ctx context.Context) {
		defer unsubscribe()
		s.followOptions(ctx, updates)
	})
	if cs, ok := s.page.(ClickSource); ok {
		s.goLoop(func(ctx context.Context) { s.serveClicks(ctx, cs.Clicks()) })
	}

	fp, ok, err := sharelink.Parse(s.page.URL())
	switch {
	case err != nil:
		s.logger.Warn("session: shared link ignored", "error", err)
	case ok:
		if err := s.startSearch(fp, true); err != nil {
			s.logger.Warn("session: search not started", "error", err)
		}
	}
}

// goLoop runs fn on the session context. It refuses once Close began.
func (s *Session) goLoop(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

// decorate attaches share buttons when the platform is enabled.
func (s *Session) decorate(ctx context.Context) int {
	if !s.deps.Store.Current().Enabled(s.profile.Name) {
		return 0
	}
	n := s.decorator.Apply(ctx)
	s.deps.Metrics.Decorated(s.profile.Name, n)
	return n
}

// followOptions re-decorates after option changes, which may have switched
// the platform on.
func (s *Session) followOptions(ctx context.Context, ch <-chan config.Options) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.decorate(ctx)
		}
	}
}

func (s *Session) serveClicks(ctx context.Context, clicks <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-clicks:
			if !ok {
				return
			}
			link, err := s.ShareByButton(ctx, key)
			if err != nil {
				s.logger.Warn("session: share failed", "button", key, "error", err)
				continue
			}
			if pr, ok := s.page.(Presenter); ok {
				if err := pr.Present(ctx, link); err != nil {
					s.logger.Warn("session: present link failed", "error", err)
				}
			}
			s.logger.Info("session: link shared", "button", key)
		}
	}
}

// Search runs a search synchronously and returns its outcome.
func (s *Session) Search(ctx context.Context, fp fingerprint.Fingerprint) (controller.Outcome, error) {
	if s.isClosed() {
		return controller.Outcome{}, ErrClosed
	}
	out, err := s.ctrl.Run(ctx, fp)
	if !errors.Is(err, controller.ErrBusy) {
		s.deps.Metrics.Search(s.profile.Name, out.State.String(), tierLabel(out), out.Attempts)
	}
	return out, err
}

func tierLabel(out controller.Outcome) string {
	if out.State != controller.Found {
		return ""
	}
	return out.Tier.String()
}

// startSearch runs a search in the background. prepare brings the comment
// stream into view first on progressive platforms.
func (s *Session) startSearch(fp fingerprint.Fingerprint, prepare bool) error {
	if s.isClosed() || s.ctx == nil {
		return ErrClosed
	}
	if s.ctrl.State() == controller.Searching {
		return controller.ErrBusy
	}
	started := s.goLoop(func(ctx context.Context) {
		if prepare && s.profile.Progressive {
			if err := s.page.Prepare(ctx); err != nil {
				s.logger.Warn("session: prepare failed", "error", err)
			}
		}
		if _, err := s.Search(ctx, fp); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("session: search ended", "error", err)
		}
	})
	if !started {
		return ErrClosed
	}
	return nil
}

// HandleMessage routes an inbound message. scrollToComment starts a
// background search; other actions are logged and ignored.
func (s *Session) HandleMessage(msg sharelink.Message) error {
	if msg.Action != sharelink.ActionScrollToComment {
		s.logger.Debug("session: message ignored", "action", msg.Action)
		s.deps.Metrics.Message(msg.Action, "ignored")
		return nil
	}
	if msg.CommentData == nil {
		s.deps.Metrics.Message(msg.Action, "rejected")
		return fmt.Errorf("%w: scrollToComment without commentData", sharelink.ErrMalformed)
	}
	if err := s.startSearch(*msg.CommentData, false); err != nil {
		s.deps.Metrics.Message(msg.Action, "rejected")
		return err
	}
	s.deps.Metrics.Message(msg.Action, "accepted")
	return nil
}

// Fingerprint builds the fingerprint of el with the page's media context.
func (s *Session) Fingerprint(ctx context.Context, el dom.Element) fingerprint.Fingerprint {
	m := fingerprint.ProbeMedia(ctx, s.page.URL(), s.profile, s.page.Player())
	return fingerprint.Build(el, s.profile, m)
}

// ShareLink builds the share link for el.
func (s *Session) ShareLink(ctx context.Context, el dom.Element) (string, error) {
	return sharelink.Build(sharelink.Strip(s.page.URL()), s.Fingerprint(ctx, el), s.profile)
}

// ShareByButton builds the share link for the comment holding the share
// button with key. Replies nest inside their parent comment, so the
// innermost holder, last in document order, is the owner.
func (s *Session) ShareByButton(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: share button without key", ErrNotFound)
	}
	sel := affordance.KeySelector(key)
	var owner dom.Element
	for _, el := range s.page.QueryAll(s.profile.CommentSelector) {
		if el.Has(sel) {
			owner = el
		}
	}
	if owner == nil {
		return "", fmt.Errorf("%w: share button %s", ErrNotFound, key)
	}
	return s.ShareLink(ctx, owner)
}

// ShareByHash builds the share link for the first rendered comment whose
// text hashes to hash. Comments with the same text share a hash; buttons
// are traced with ShareByButton.
func (s *Session) ShareByHash(ctx context.Context, hash string) (string, error) {
	for _, c := range extract.All(s.page, s.profile, fingerprint.Media{}) {
		if c.Fingerprint.Hash == hash {
			return s.ShareLink(ctx, c.Element)
		}
	}
	return "", fmt.Errorf("%w: comment %s", ErrNotFound, hash)
}

// Comments lists the fingerprints of every rendered comment.
func (s *Session) Comments(ctx context.Context) []fingerprint.Fingerprint {
	m := fingerprint.ProbeMedia(ctx, s.page.URL(), s.profile, s.page.Player())
	all := extract.All(s.page, s.profile, m)
	out := make([]fingerprint.Fingerprint, len(all))
	for i, c := range all {
		out[i] = c.Fingerprint
	}
	return out
}

// Status reports the session state.
func (s *Session) Status() Status {
	st := Status{
		ID:       s.id,
		URL:      s.page.URL(),
		Platform: s.profile.Name,
		Enabled:  s.deps.Store.Current().Enabled(s.profile.Name),
		State:    s.ctrl.State().String(),
		Opened:   s.opened,
	}
	if !s.isClosed() {
		st.Comments = extract.Count(s.page, s.profile)
	}
	if fp, ok := s.engine.Cache().Last(); ok {
		st.LastFound = &fp
	}
	return st
}

// Wait blocks until every background search and loop has returned.
func (s *Session) Wait() { s.wg.Wait() }

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops all loops, waits for them and closes the page.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.deps.Metrics.SessionClosed()
	}
	s.logger.Info("session: closed")
	if err := s.page.Close(); err != nil {
		return fmt.Errorf("session: close page: %w", err)
	}
	return nil
}
