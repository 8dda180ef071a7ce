package browser

import (
	"testing"
	"time"
)

func TestShouldBlock(t *testing.T) {
	blocked := map[string]bool{"images": true, "fonts": true, "xhr": true}
	tests := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"XHR", true},
		{"Stylesheet", false},
		{"Media", false},
		{"Document", false},
		{"Script", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(blocked, tt.resType); got != tt.want {
			t.Errorf("shouldBlock(%q): got %v, want %v", tt.resType, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("headful") != Headful {
		t.Error("headful not parsed")
	}
	for _, s := range []string{"", "headless", "bogus"} {
		if ParseMode(s) != Headless {
			t.Errorf("ParseMode(%q): want Headless", s)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryLimit != 1<<30 {
		t.Errorf("MemoryLimit: got %d", c.MemoryLimit)
	}
	if c.RecycleInterval != 4*time.Hour {
		t.Errorf("RecycleInterval: got %v", c.RecycleInterval)
	}
	if c.XvfbDisplay != ":99" {
		t.Errorf("XvfbDisplay: got %q", c.XvfbDisplay)
	}
	if c.NavigateTimeout != 30*time.Second || c.CallTimeout != 5*time.Second {
		t.Errorf("timeouts: navigate=%v call=%v", c.NavigateTimeout, c.CallTimeout)
	}
	if c.SweepInterval != time.Minute {
		t.Errorf("SweepInterval: got %v", c.SweepInterval)
	}
	if c.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestAcquireWithoutStart(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.acquire(); err == nil {
		t.Fatal("acquire before Start should fail")
	}
}

func TestForgetReleasesHandles(t *testing.T) {
	p := &Page{handles: make(map[int64]*Element)}
	a, b := p.handle(1), p.handle(2)
	if p.handle(1) != a {
		t.Fatal("same key should return the same handle")
	}

	p.forget([]int64{1, 99})
	if len(p.handles) != 1 {
		t.Errorf("handles: got %d, want 1", len(p.handles))
	}
	if p.handle(2) != b {
		t.Error("live handle was dropped")
	}
	if p.handle(1) == a {
		t.Error("released key kept its old handle")
	}
}
