// Package controller drives resolution of a shared comment to completion.
//
// A Controller is a small state machine:
//
//	Idle -> Searching -> Found | Exhausted
//
// Each attempt is one synchronous resolve. Between misses the controller
// loads more comments (progressive platforms), then waits a delay that
// grows linearly with the attempt number up to a cap. Cancelling the
// context returns the controller to Idle and stops all scheduling.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/loader"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/resolve"
)

// ErrBusy is returned when a search is already in flight.
var ErrBusy = errors.New("controller: search already in progress")

// State of the controller.
type State int

const (
	Idle State = iota
	Searching
	Found
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config bounds the retry policy.
type Config struct {
	MaxAttempts int           `yaml:"max_attempts"` // default 4
	BaseDelay   time.Duration `yaml:"base_delay"`   // default 500ms
	Step        time.Duration `yaml:"step"`         // default 300ms
	MaxDelay    time.Duration `yaml:"max_delay"`    // default 2s
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.Step <= 0 {
		c.Step = 300 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
}

// Delay is the wait after the given failed attempt (1-based).
func (c Config) Delay(attempt int) time.Duration {
	d := c.BaseDelay + c.Step*time.Duration(attempt-1)
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Resolver is the synchronous lookup, satisfied by *resolve.Engine.
type Resolver interface {
	Resolve(fp fingerprint.Fingerprint, p platform.Profile) (resolve.Match, bool)
}

// Page performs the visible side effects of a search.
type Page interface {
	// Reveal scrolls el into view and highlights it.
	Reveal(ctx context.Context, el dom.Element, style dom.HighlightStyle) error
	// Nudge scrolls to the given fraction of the page height.
	Nudge(ctx context.Context, fraction float64) error
}

// Runner loads more comments, satisfied by *loader.Loader.
type Runner interface {
	Run(ctx context.Context) loader.Result
}

// Deps wires a Controller to a page.
type Deps struct {
	Profile  platform.Profile
	Resolver Resolver
	Page     Page
	Player   dom.Player // nil when the page has no player
	Loader   Runner     // nil when the platform is not progressive
	// Style returns the highlight style at reveal time.
	Style  func() dom.HighlightStyle
	Logger *slog.Logger
}

// Outcome reports how a Run ended.
type Outcome struct {
	State    State
	Attempts int
	Tier     resolve.Tier
	Element  dom.Element
}

// nudges are the page fractions visited on successive later misses.
var nudges = []float64{0.3, 0.6, 0.9}

// Controller runs at most one search at a time.
type Controller struct {
	cfg  Config
	deps Deps

	// Sleep waits between attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
}

// New creates a Controller. Zero config fields take their defaults.
func New(cfg Config, deps Deps) *Controller {
	cfg.Defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Style == nil {
		deps.Style = func() dom.HighlightStyle { return dom.HighlightStyle{Color: "#FFEB3B", Duration: 2} }
	}
	return &Controller{cfg: cfg, deps: deps, Sleep: loader.Sleep}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run searches for fp until it is found, the attempt budget is spent, or
// ctx is cancelled. It returns ErrBusy if another Run is in flight, and
// the context error on cancellation.
func (c *Controller) Run(ctx context.Context, fp fingerprint.Fingerprint) (Outcome, error) {
	c.mu.Lock()
	if c.state == Searching {
		c.mu.Unlock()
		return Outcome{State: Searching}, ErrBusy
	}
	c.state = Searching
	c.mu.Unlock()

	log := c.deps.Logger.With("platform", c.deps.Profile.Name, "hash", fp.Hash)
	log.Info("controller: searching", "max_attempts", c.cfg.MaxAttempts)

	c.seek(ctx, fp, log)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			c.setState(Idle)
			return Outcome{State: Idle, Attempts: attempt - 1}, err
		}

		if m, ok := c.deps.Resolver.Resolve(fp, c.deps.Profile); ok {
			if err := c.deps.Page.Reveal(ctx, m.Element, c.deps.Style()); err != nil {
				log.Warn("controller: reveal failed", "error", err)
			}
			c.setState(Found)
			log.Info("controller: comment found", "attempt", attempt, "tier", m.Tier.String())
			return Outcome{State: Found, Attempts: attempt, Tier: m.Tier, Element: m.Element}, nil
		}

		if attempt >= c.cfg.MaxAttempts {
			c.setState(Exhausted)
			log.Warn("controller: comment not found", "attempts", attempt)
			return Outcome{State: Exhausted, Attempts: attempt}, nil
		}

		c.loadMore(ctx, attempt, log)

		delay := c.cfg.Delay(attempt)
		log.Debug("controller: retry scheduled", "attempt", attempt, "delay", delay)
		if err := c.Sleep(ctx, delay); err != nil {
			c.setState(Idle)
			return Outcome{State: Idle, Attempts: attempt}, err
		}
	}
}

// seek moves the player to the shared position. Failure is logged only.
func (c *Controller) seek(ctx context.Context, fp fingerprint.Fingerprint, log *slog.Logger) {
	if c.deps.Player == nil || fp.VideoID == "" || fp.VideoTimestamp <= 0 {
		return
	}
	if err := c.deps.Player.Seek(ctx, fp.VideoTimestamp); err != nil {
		log.Warn("controller: seek failed", "position", fp.VideoTimestamp, "error", err)
	}
}

// loadMore runs the loader after the first miss and nudges the page after
// later ones. Non-progressive platforms do nothing.
func (c *Controller) loadMore(ctx context.Context, attempt int, log *slog.Logger) {
	if !c.deps.Profile.Progressive {
		return
	}
	if attempt == 1 && c.deps.Loader != nil {
		c.deps.Loader.Run(ctx)
		return
	}
	i := attempt - 1
	if c.deps.Loader != nil {
		i--
	}
	f := nudges[i%len(nudges)]
	if err := c.deps.Page.Nudge(ctx, f); err != nil {
		log.Warn("controller: nudge failed", "fraction", f, "error", err)
	}
}
