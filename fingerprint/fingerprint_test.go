package fingerprint

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/commentlink/dom/htmldoc"
	"github.com/hazyhaar/commentlink/platform"
)

func TestHashOf(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", "0"},
		{"a", "61"},
		{"ab", "c21"},
		{"hello", "5e918d2"},
	}
	for _, tt := range tests {
		if got := HashOf(tt.text); got != tt.want {
			t.Errorf("HashOf(%q): got %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestHashOf_Deterministic(t *testing.T) {
	for _, s := range []string{"Great point!", "héllo wörld", "🙂 emoji pair", strings.Repeat("x", 5000)} {
		if HashOf(s) != HashOf(s) {
			t.Errorf("HashOf(%q) not deterministic", s)
		}
	}
	if HashOf("Great point!") == HashOf("great point!") {
		t.Error("hash should be case sensitive")
	}
	if HashOf("ab") == HashOf("ba") {
		t.Error("hash should be order sensitive")
	}
}

func TestHashOf_NeverNegative(t *testing.T) {
	// Long inputs overflow the accumulator many times over.
	for i := 1; i < 200; i++ {
		h := HashOf(strings.Repeat("zq", i))
		if strings.HasPrefix(h, "-") {
			t.Fatalf("HashOf produced signed hex %q", h)
		}
	}
}

const youtubePage = `<html><body>
<ytd-comment-thread-renderer id="Ugx123">
  <span id="author-text"> alice </span>
  <span class="published-time-text">2 days ago</span>
  <div id="content-text">Great point!</div>
  <div id="toolbar"></div>
</ytd-comment-thread-renderer>
<ytd-comment-thread-renderer id="Ugx456">
  <div id="content-text">No author here</div>
</ytd-comment-thread-renderer>
</body></html>`

func TestBuild(t *testing.T) {
	doc, err := htmldoc.ParseString(youtubePage)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := platform.ByName("youtube")
	els := doc.QueryAll(p.CommentSelector)
	if len(els) != 2 {
		t.Fatalf("got %d comments, want 2", len(els))
	}

	fp := Build(els[0], p, Media{VideoID: "dQw4w9WgXcQ", Position: 42})
	if fp.Text != "Great point!" || fp.Username != "alice" || fp.Timestamp != "2 days ago" {
		t.Errorf("fields: %+v", fp)
	}
	if fp.Hash != HashOf("Great point!") {
		t.Errorf("hash: got %q, want %q", fp.Hash, HashOf("Great point!"))
	}
	if fp.NativeID != "Ugx123" {
		t.Errorf("native id: got %q", fp.NativeID)
	}
	if fp.VideoID != "dQw4w9WgXcQ" || fp.VideoTimestamp != 42 {
		t.Errorf("media: got %q@%d", fp.VideoID, fp.VideoTimestamp)
	}

	fp2 := Build(els[1], p, Media{})
	if fp2.Username != "" || fp2.Timestamp != "" {
		t.Errorf("missing selectors should yield empty fields, got %+v", fp2)
	}
	if fp2.VideoID != "" {
		t.Errorf("no media context should leave video id empty, got %q", fp2.VideoID)
	}
}

func TestBuild_NoNativeIDOffPlatform(t *testing.T) {
	doc, err := htmldoc.ParseString(`<div class="Comment" id="t1_x"><div class="RichTextJSON-root">hi</div></div>`)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := platform.ByName("reddit")
	fp := Build(doc.QueryAll(p.CommentSelector)[0], p, Media{VideoID: "ignored"})
	if fp.NativeID != "" || fp.VideoID != "" {
		t.Errorf("reddit fingerprint carries youtube fields: %+v", fp)
	}
}

type stubPlayer struct {
	pos float64
	err error
}

func (s stubPlayer) Position(context.Context) (float64, error) { return s.pos, s.err }
func (s stubPlayer) Seek(context.Context, int) error            { return nil }

func TestProbeMedia(t *testing.T) {
	yt, _ := platform.ByName("youtube")
	rd, _ := platform.ByName("reddit")
	ctx := context.Background()

	m := ProbeMedia(ctx, "https://www.youtube.com/watch?v=abc&t=10s", yt, stubPlayer{pos: 61.8})
	if m.VideoID != "abc" || m.Position != 61 {
		t.Errorf("got %+v", m)
	}

	m = ProbeMedia(ctx, "https://www.youtube.com/watch?v=abc", yt, stubPlayer{err: errors.New("no player")})
	if m.VideoID != "abc" || m.Position != 0 {
		t.Errorf("player failure should keep id and drop position, got %+v", m)
	}

	m = ProbeMedia(ctx, "https://www.youtube.com/watch?v=abc", yt, nil)
	if m.VideoID != "abc" {
		t.Errorf("nil player: got %+v", m)
	}

	if m := ProbeMedia(ctx, "https://www.reddit.com/r/go", rd, stubPlayer{pos: 5}); m != (Media{}) {
		t.Errorf("non-media platform: got %+v", m)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	fp := Fingerprint{
		Text:           `<b>"quoted" & tagged</b>`,
		Username:       "alice",
		Timestamp:      "1h",
		Hash:           HashOf(`<b>"quoted" & tagged</b>`),
		NativeID:       "Ugx1",
		VideoID:        "v1",
		VideoTimestamp: 12,
	}
	data, err := Marshal(fp)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `<`) {
		t.Errorf("HTML escaping should be off: %s", data)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != fp {
		t.Errorf("round trip: got %+v, want %+v", got, fp)
	}
}

func TestMarshal_WireNames(t *testing.T) {
	data, err := Marshal(Fingerprint{Text: "Great point!", Username: "alice", Hash: HashOf("Great point!")})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"text":"Great point!","username":"alice","timestamp":"","hash":"` + HashOf("Great point!") + `"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
	// The encoded form must survive query escaping unchanged.
	if u, _ := url.QueryUnescape(url.QueryEscape(string(data))); u != want {
		t.Errorf("query escaping altered payload: %s", u)
	}
}

func TestUnmarshal_NumericHash(t *testing.T) {
	got, err := Unmarshal([]byte(`{"text":"","username":"bob","timestamp":"","hash":0,"commentId":"c1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != HashOf("") {
		t.Errorf("hash: got %q, want %q", got.Hash, HashOf(""))
	}
	if got.Username != "bob" || got.NativeID != "c1" {
		t.Errorf("other fields lost: %+v", got)
	}

	got, err = Unmarshal([]byte(`{"text":"hi","hash":"d9a"}`))
	if err != nil || got.Hash != "d9a" {
		t.Errorf("string hash: got %q, %v", got.Hash, err)
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	for _, in := range []string{``, `{`, `[]`, `{}`, `{"username":"bob"}`, `{"text":"hi","hash":true}`} {
		if _, err := Unmarshal([]byte(in)); err == nil {
			t.Errorf("Unmarshal(%q): expected error", in)
		}
	}
}
