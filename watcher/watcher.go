// Package watcher re-applies share affordances after the page grows.
//
// Mutation signals are coalesced: the apply function runs once the stream
// has been quiet for the debounce window, or immediately when a burst
// reaches MaxPending signals.
package watcher

import (
	"context"
	"log/slog"
	"time"
)

// Config controls batching.
type Config struct {
	// Window is the quiet period before applying. Default: 300ms.
	Window time.Duration `yaml:"window"`
	// MaxPending applies immediately after this many signals. Default: 100.
	MaxPending int `yaml:"max_pending"`
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = 300 * time.Millisecond
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 100
	}
}

// Watcher consumes mutation signals and calls apply after each burst.
type Watcher struct {
	cfg     Config
	signals <-chan struct{}
	apply   func(ctx context.Context) int
	logger  *slog.Logger

	pending int
	timer   *time.Timer
	timerCh <-chan time.Time
}

// New creates a Watcher. apply returns how many elements it changed.
func New(cfg Config, signals <-chan struct{}, apply func(ctx context.Context) int, logger *slog.Logger) *Watcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{cfg: cfg, signals: signals, apply: apply, logger: logger}
}

// Run blocks until ctx is done or the signal channel is closed. A pending
// burst is dropped on cancel and flushed on close.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-w.signals:
			if !ok {
				w.flush(ctx)
				return nil
			}
			w.add(ctx)

		case <-w.timerCh:
			w.timer = nil
			w.timerCh = nil
			w.flush(ctx)
		}
	}
}

func (w *Watcher) add(ctx context.Context) {
	w.pending++
	if w.pending >= w.cfg.MaxPending {
		w.flush(ctx)
		return
	}
	// (Re)start the window.
	w.stopTimer()
	w.timer = time.NewTimer(w.cfg.Window)
	w.timerCh = w.timer.C
}

func (w *Watcher) flush(ctx context.Context) {
	if w.pending == 0 {
		return
	}
	n := w.apply(ctx)
	w.logger.Debug("watcher: applied", "signals", w.pending, "decorated", n)
	w.pending = 0
	w.stopTimer()
}

func (w *Watcher) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
		w.timerCh = nil
	}
}
