package inspect

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/commentlink/affordance"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/session"
	"github.com/hazyhaar/commentlink/sharelink"
)

const redditURL = "https://www.reddit.com/r/golang/comments/1"

const redditPage = `<html><body><div id="list">
<div class="Comment"><a data-testid="comment_author">bob</a><div class="RichTextJSON-root">Nice</div><div class="voteButtonsContainer"></div><div class="bar"></div></div>
<div class="Comment"><a data-testid="comment_author">alice</a><div class="RichTextJSON-root"><p>Great <strong>point</strong>!</p></div><div class="voteButtonsContainer"></div><div class="bar"></div></div>
</div></body></html>`

func TestScan(t *testing.T) {
	rep, err := New(nil).Scan(redditPage, redditURL, true)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Platform != "reddit" {
		t.Errorf("platform: got %q, want reddit", rep.Platform)
	}
	if len(rep.Comments) != 2 {
		t.Fatalf("comments: got %d, want 2", len(rep.Comments))
	}
	alice := rep.Comments[1]
	if alice.Fingerprint.Text != "Great point!" || alice.Fingerprint.Username != "alice" {
		t.Errorf("fingerprint: got %+v", alice.Fingerprint)
	}
	if alice.Fingerprint.Hash != "734041a4" {
		t.Errorf("hash: got %q, want 734041a4", alice.Fingerprint.Hash)
	}
	if !strings.Contains(alice.Preview, "**point**") {
		t.Errorf("preview: got %q, want markdown emphasis", alice.Preview)
	}
	got, ok, err := sharelink.Parse(alice.Link)
	if err != nil || !ok {
		t.Fatalf("link does not parse: ok=%v err=%v", ok, err)
	}
	if got != alice.Fingerprint {
		t.Errorf("link fingerprint: got %+v, want %+v", got, alice.Fingerprint)
	}
}

func TestScan_Unsupported(t *testing.T) {
	_, err := New(nil).Scan(redditPage, "https://example.com/", false)
	if !errors.Is(err, session.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestResolve(t *testing.T) {
	in := New(nil)
	fp := fingerprint.Fingerprint{Text: "Great point!", Username: "alice", Hash: fingerprint.HashOf("Great point!")}
	link, err := sharelink.Build(redditURL, fp, mustProfile(t))
	if err != nil {
		t.Fatal(err)
	}

	res, err := in.Resolve(redditPage, link)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.Tier != "composite" {
		t.Fatalf("got found=%v tier=%q, want composite hit", res.Found, res.Tier)
	}
	if !strings.Contains(res.HTML, "alice") {
		t.Errorf("html: got %q", res.HTML)
	}

	fp.Text, fp.Hash = "Never said", fingerprint.HashOf("Never said")
	link, _ = sharelink.Build(redditURL, fp, mustProfile(t))
	res, err = in.Resolve(redditPage, link)
	if err != nil {
		t.Fatal(err)
	}
	if res.Found {
		t.Error("absent comment reported found")
	}
}

func TestResolve_NoFingerprint(t *testing.T) {
	_, err := New(nil).Resolve(redditPage, redditURL)
	if !errors.Is(err, sharelink.ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestDecorate(t *testing.T) {
	out, n, err := New(nil).Decorate(context.Background(), redditPage, redditURL, affordance.StyleDefault, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("attached: got %d, want 2", n)
	}
	if c := strings.Count(out, affordance.Marker); c != 2 {
		t.Errorf("markers in output: got %d, want 2", c)
	}
}

func TestProbe(t *testing.T) {
	a, err := Probe(redditPage)
	if err != nil {
		t.Fatal(err)
	}
	if a.Container != ".Comment" {
		t.Errorf("container: got %q, want .Comment", a.Container)
	}
	if a.Section != "#list" {
		t.Errorf("section: got %q, want #list", a.Section)
	}
	var found bool
	for _, c := range a.Containers {
		if c.Platform == "reddit" && c.Count == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("reddit selector not reported: %+v", a.Containers)
	}
	if got := a.Username[`[data-testid="comment_author"]`]; got != "bob" {
		t.Errorf("username candidate: got %q, want bob (map %v)", got, a.Username)
	}
}

func TestProbe_Nothing(t *testing.T) {
	a, err := Probe(`<html><body><p>hello</p></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Containers) != 0 || a.Container != "" {
		t.Errorf("got %+v, want no containers", a)
	}
}

func mustProfile(t *testing.T) platform.Profile {
	t.Helper()
	p, ok := platform.ByName("reddit")
	if !ok {
		t.Fatal("reddit profile missing")
	}
	return p
}

func TestProbe_DensestGeneric(t *testing.T) {
	markup := `<html><body>
<nav><a class="comment-nav" href="/a">comments</a><a class="comment-nav" href="/b">more comments</a></nav>
<section id="thread">
<div class="user-comment"><b>dan</b><p>This is a long enough remark about the article.</p></div>
<div class="user-comment"><b>eve</b><p>And a second remark that is also long enough.</p></div>
</section></body></html>`
	a, err := Probe(markup)
	if err != nil {
		t.Fatal(err)
	}
	if a.Container != `[class*="comment"]` {
		t.Fatalf("container: got %q", a.Container)
	}
	if a.Section == "" {
		t.Error("no section suggested")
	}
}
