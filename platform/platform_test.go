package platform

import "testing"

func TestIdentify(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube", true},
		{"https://m.youtube.com/watch?v=abc", "youtube", true},
		{"https://x.com/someone/status/1", "twitter", true},
		{"https://twitter.com/someone", "twitter", true},
		{"https://old.reddit.com/r/golang", "reddit", true},
		{"https://www.facebook.com/post/1", "facebook", true},
		{"https://www.instagram.com/p/xyz", "instagram", true},
		{"https://www.linkedin.com/feed/", "linkedin", true},
		{"https://www.netflix.com/", "", false},
		{"https://example.com/", "", false},
		{"not a url\x7f", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		p, ok := Identify(tt.url)
		if ok != tt.ok {
			t.Errorf("Identify(%q): ok=%v, want %v", tt.url, ok, tt.ok)
			continue
		}
		if p.Name != tt.want {
			t.Errorf("Identify(%q): got %q, want %q", tt.url, p.Name, tt.want)
		}
	}
}

func TestIsEnabled(t *testing.T) {
	prefs := map[string]bool{"reddit": false, "youtube": true}
	if IsEnabled("reddit", prefs) {
		t.Error("reddit switched off but reported enabled")
	}
	if !IsEnabled("youtube", prefs) {
		t.Error("youtube switched on but reported disabled")
	}
	if !IsEnabled("linkedin", prefs) {
		t.Error("absent platform should default to enabled")
	}
	if !IsEnabled("linkedin", nil) {
		t.Error("nil preferences should default to enabled")
	}
}

func TestYouTubeProfile(t *testing.T) {
	p, ok := ByName("youtube")
	if !ok {
		t.Fatal("youtube profile missing")
	}
	if !p.NativeIDs || !p.Progressive || !p.Media() {
		t.Errorf("youtube flags: native=%v progressive=%v media=%v", p.NativeIDs, p.Progressive, p.Media())
	}
	if len(Names()) != 6 {
		t.Errorf("Names: got %d platforms, want 6", len(Names()))
	}
}
