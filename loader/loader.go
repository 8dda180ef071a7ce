// Package loader forces a lazily rendered comment stream to materialize
// more comments by repeatedly advancing it and measuring growth.
package loader

import (
	"context"
	"log/slog"
	"time"
)

// Source is a comment stream that can be pushed to render more.
type Source interface {
	// Count returns the number of comment roots currently rendered.
	Count() int
	// Advance scrolls or expands the stream once.
	Advance(ctx context.Context) error
}

// Config bounds the load loop.
type Config struct {
	MaxIterations int           `yaml:"max_iterations"` // default 3
	Settle        time.Duration `yaml:"settle"`         // default 1s
	StallLimit    int           `yaml:"stall_limit"`    // default 2
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.Settle <= 0 {
		c.Settle = time.Second
	}
	if c.StallLimit <= 0 {
		c.StallLimit = 2
	}
}

// Result summarizes one Run.
type Result struct {
	Iterations int
	Initial    int
	Final      int
	Converged  bool  // stopped because the count stopped growing
	Err        error // context error when interrupted
}

// Grew reports whether the run rendered additional comments.
func (r Result) Grew() bool { return r.Final > r.Initial }

// Loader drives a Source.
type Loader struct {
	src    Source
	cfg    Config
	logger *slog.Logger

	// OnComplete, if set, receives every Result.
	OnComplete func(Result)
	// Sleep waits between advance and re-measure. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Loader. Zero config fields take their defaults.
func New(src Source, cfg Config, logger *slog.Logger) *Loader {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{src: src, cfg: cfg, logger: logger, Sleep: Sleep}
}

// Run loops advance, settle, re-measure until MaxIterations is reached or
// the count has not grown for StallLimit consecutive iterations.
func (l *Loader) Run(ctx context.Context) Result {
	res := Result{Initial: l.src.Count()}
	res.Final = res.Initial
	stalls := 0

	for res.Iterations < l.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		before := l.src.Count()
		if err := l.src.Advance(ctx); err != nil {
			l.logger.Warn("loader: advance failed", "iteration", res.Iterations+1, "error", err)
		}
		if err := l.Sleep(ctx, l.cfg.Settle); err != nil {
			res.Err = err
			break
		}
		res.Iterations++
		res.Final = l.src.Count()

		if res.Final > before {
			stalls = 0
		} else {
			stalls++
		}
		l.logger.Debug("loader: iteration", "n", res.Iterations, "count", res.Final, "stalls", stalls)
		if stalls >= l.cfg.StallLimit {
			res.Converged = true
			break
		}
	}

	l.logger.Info("loader: done",
		"iterations", res.Iterations,
		"initial", res.Initial,
		"final", res.Final,
		"converged", res.Converged,
	)
	if l.OnComplete != nil {
		l.OnComplete(res)
	}
	return res
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
