package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/commentlink/config"
	"github.com/hazyhaar/commentlink/controller"
	"github.com/hazyhaar/commentlink/dom/htmldoc"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/metrics"
	"github.com/hazyhaar/commentlink/session"
	"github.com/hazyhaar/commentlink/sharelink"
)

const redditURL = "https://www.reddit.com/r/golang/comments/1"

const redditPage = `<html><body><div id="list">
<div class="Comment"><a data-testid="comment_author">bob</a><div class="RichTextJSON-root">Nice</div><div class="voteButtonsContainer"></div><div class="bar"></div></div>
<div class="Comment"><a data-testid="comment_author">alice</a><div class="RichTextJSON-root">Great point!</div><div class="voteButtonsContainer"></div><div class="bar"></div></div>
</div></body></html>`

type fixture struct {
	srv      *httptest.Server
	store    *config.Store
	sessions *session.Manager
	pages    []*htmldoc.Page
}

func newFixture(t *testing.T, cfg config.APIConfig, save SaveFunc) *fixture {
	t.Helper()
	f := &fixture{store: config.NewStore(config.Default(), nil)}
	open := func(_ context.Context, rawURL string) (session.Page, error) {
		doc, err := htmldoc.ParseString(redditPage)
		if err != nil {
			return nil, err
		}
		p := htmldoc.NewPage(doc, rawURL)
		f.pages = append(f.pages, p)
		return p, nil
	}
	deps := session.Deps{
		Store:      f.store,
		Controller: controller.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Step: time.Millisecond, MaxDelay: time.Millisecond},
	}
	f.sessions = session.NewManager(context.Background(), open, deps, 2)
	t.Cleanup(f.sessions.CloseAll)

	f.srv = httptest.NewServer(New(f.sessions, f.store, save, metrics.New(), cfg, nil).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()
	resp, out := f.do(t, http.MethodPost, "/v1/sessions", map[string]string{"url": redditURL})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open: status %d, body %v", resp.StatusCode, out)
	}
	id, _ := out["id"].(string)
	if !strings.HasPrefix(id, "ses_") {
		t.Fatalf("open: id %q", id)
	}
	return id
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, config.APIConfig{}, nil)
	resp, out := f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" || resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Errorf("security headers missing: %v", resp.Header)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type: %q", resp.Header.Get("Content-Type"))
	}

	r, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r.Body)
	if !strings.Contains(buf.String(), "commentlink_sessions_active") {
		t.Error("metrics output lacks commentlink_sessions_active")
	}
}

func TestBuildAndParseLink(t *testing.T) {
	f := newFixture(t, config.APIConfig{}, nil)

	resp, out := f.do(t, http.MethodPost, "/v1/links", map[string]any{
		"url":     redditURL,
		"comment": map[string]string{"text": "Great point!", "username": "alice"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("build: %d %v", resp.StatusCode, out)
	}
	link, _ := out["link"].(string)

	resp, out = f.do(t, http.MethodGet, "/v1/links/parse?link="+url.QueryEscape(link), nil)
	if resp.StatusCode != http.StatusOK || out["shared"] != true {
		t.Fatalf("parse: %d %v", resp.StatusCode, out)
	}
	comment, _ := out["comment"].(map[string]any)
	if comment["hash"] != "734041a4" {
		t.Errorf("hash: got %v, want 734041a4", comment["hash"])
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, config.APIConfig{}, nil)
	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/v1/links", map[string]any{"url": "https://example.com/", "comment": map[string]string{"text": "x"}}, http.StatusUnprocessableEntity},
		{http.MethodPost, "/v1/links", "{not json", http.StatusBadRequest},
		{http.MethodGet, "/v1/links/parse?link=" + url.QueryEscape(redditURL+"?shared_comment={bad"), nil, http.StatusBadRequest},
		{http.MethodGet, "/v1/sessions/ses_missing", nil, http.StatusNotFound},
		{http.MethodDelete, "/v1/sessions/ses_missing", nil, http.StatusNotFound},
		{http.MethodPost, "/v1/sessions", map[string]string{"url": "https://example.com/"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		resp, out := f.do(t, tt.method, tt.path, tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s: got %d, want %d (%v)", tt.method, tt.path, resp.StatusCode, tt.want, out)
		}
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", controller.ErrBusy), http.StatusConflict},
		{session.ErrClosed, http.StatusGone},
		{session.ErrLimit, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, config.APIConfig{}, nil)
	id := f.open(t)

	resp, out := f.do(t, http.MethodGet, "/v1/sessions", nil)
	if list, _ := out["sessions"].([]any); resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: %d %v", resp.StatusCode, out)
	}

	resp, out = f.do(t, http.MethodGet, "/v1/sessions/"+id+"/comments", nil)
	if list, _ := out["comments"].([]any); resp.StatusCode != http.StatusOK || len(list) != 2 {
		t.Fatalf("comments: %d %v", resp.StatusCode, out)
	}

	resp, out = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/share", map[string]string{"hash": "734041a4"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share: %d %v", resp.StatusCode, out)
	}
	link, _ := out["link"].(string)
	fp, ok, err := sharelink.Parse(link)
	if err != nil || !ok || fp.Username != "alice" {
		t.Fatalf("share link: %q ok=%v err=%v", link, ok, err)
	}

	resp, _ = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/share", map[string]string{"hash": "ffff"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("share unknown hash: got %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodDelete, "/v1/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close: got %d", resp.StatusCode)
	}
	if !f.pages[0].Closed() {
		t.Error("page not closed")
	}
}

func TestMessage(t *testing.T) {
	f := newFixture(t, config.APIConfig{MessageRate: 0.001, MessageBurst: 1}, nil)
	id := f.open(t)

	fp := fingerprint.Fingerprint{Text: "Great point!", Username: "alice", Hash: fingerprint.HashOf("Great point!")}
	resp, out := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", sharelink.ScrollTo(fp))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("message: %d %v", resp.StatusCode, out)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(f.pages[0].Revealed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("comment never revealed")
		}
		time.Sleep(2 * time.Millisecond)
	}

	resp, _ = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", sharelink.ScrollTo(fp))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second message: got %d, want 429", resp.StatusCode)
	}
}

func TestMessage_Malformed(t *testing.T) {
	f := newFixture(t, config.APIConfig{}, nil)
	id := f.open(t)
	resp, _ := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", `{"action":"scrollToComment"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %d, want 400", resp.StatusCode)
	}
}

func TestOptions(t *testing.T) {
	f := newFixture(t, config.APIConfig{}, nil)
	resp, out := f.do(t, http.MethodPut, "/v1/options", map[string]any{
		"highlightColor": "#ff0000",
		"platforms":      map[string]bool{"reddit": false},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: %d %v", resp.StatusCode, out)
	}
	cur := f.store.Current()
	if cur.HighlightColor != "#ff0000" || cur.Enabled("reddit") {
		t.Errorf("store not updated: %+v", cur)
	}
	if cur.HighlightDuration != config.DefaultHighlightDuration {
		t.Errorf("duration not normalized: %v", cur.HighlightDuration)
	}

	_, out = f.do(t, http.MethodGet, "/v1/options", nil)
	if out["highlightColor"] != "#ff0000" {
		t.Errorf("get: %v", out)
	}
}

func TestOptions_Save(t *testing.T) {
	var saved []config.Options
	save := func(_ context.Context, o config.Options) error {
		saved = append(saved, o)
		return nil
	}
	f := newFixture(t, config.APIConfig{}, save)
	resp, _ := f.do(t, http.MethodPut, "/v1/options", map[string]any{"buttonStyle": "compact"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("put: got %d, want 202", resp.StatusCode)
	}
	if len(saved) != 1 || saved[0].ButtonStyle != "compact" {
		t.Fatalf("saved: %+v", saved)
	}
	if f.store.Current().ButtonStyle != config.DefaultButtonStyle {
		t.Error("store updated directly instead of through the settings watcher")
	}
}
