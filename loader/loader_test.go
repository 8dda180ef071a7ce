package loader

import (
	"context"
	"errors"
	"testing"
	"time"
)

// growing renders step more comments per Advance until limit advances.
type growing struct {
	count    int
	step     int
	limit    int
	advances int
	fail     error
}

func (g *growing) Count() int { return g.count }

func (g *growing) Advance(context.Context) error {
	g.advances++
	if g.fail != nil {
		return g.fail
	}
	if g.advances <= g.limit {
		g.count += g.step
	}
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRun_ConvergesAfterGrowthStops(t *testing.T) {
	for k := 0; k <= 6; k++ {
		src := &growing{count: 20, step: 20, limit: k}
		l := New(src, Config{MaxIterations: 100, StallLimit: 2}, nil)
		l.Sleep = noSleep

		res := l.Run(context.Background())
		if !res.Converged {
			t.Errorf("k=%d: did not converge: %+v", k, res)
		}
		if res.Iterations != k+2 {
			t.Errorf("k=%d: iterations got %d, want %d", k, res.Iterations, k+2)
		}
		if res.Final != 20+20*k {
			t.Errorf("k=%d: final got %d, want %d", k, res.Final, 20+20*k)
		}
	}
}

func TestRun_MaxIterations(t *testing.T) {
	src := &growing{count: 0, step: 1, limit: 1000}
	l := New(src, Config{}, nil)
	l.Sleep = noSleep

	res := l.Run(context.Background())
	if res.Iterations != 3 || res.Converged {
		t.Errorf("got %+v, want 3 iterations without convergence", res)
	}
	if !res.Grew() {
		t.Error("expected growth")
	}
}

func TestRun_OnCompleteOnce(t *testing.T) {
	var calls int
	var got Result
	l := New(&growing{}, Config{}, nil)
	l.Sleep = noSleep
	l.OnComplete = func(r Result) { calls++; got = r }

	res := l.Run(context.Background())
	if calls != 1 {
		t.Fatalf("OnComplete called %d times, want 1", calls)
	}
	if got != res {
		t.Errorf("callback got %+v, Run returned %+v", got, res)
	}
}

func TestRun_AdvanceErrorCountsAsStall(t *testing.T) {
	src := &growing{count: 5, fail: errors.New("no scroll target")}
	l := New(src, Config{}, nil)
	l.Sleep = noSleep

	res := l.Run(context.Background())
	if !res.Converged || res.Iterations != 2 {
		t.Errorf("got %+v, want convergence after 2 iterations", res)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &growing{step: 1, limit: 100}
	l := New(src, Config{MaxIterations: 10, Settle: time.Hour}, nil)

	done := make(chan Result, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case res := <-done:
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("Err: got %v, want context.Canceled", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.Defaults()
	if c.MaxIterations != 3 || c.Settle != time.Second || c.StallLimit != 2 {
		t.Errorf("defaults: %+v", c)
	}
}
