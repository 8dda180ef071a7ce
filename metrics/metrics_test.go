package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.SessionOpened()
	m.SessionClosed()
	m.Search("reddit", "found", "cache", 1)
	m.Load(2)
	m.Decorated("reddit", 3)
	m.Message("scrollToComment", "accepted")
	if m.Registry() != nil {
		t.Error("nil metrics returned a registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.Search("youtube", "found", "composite", 2)
	m.Search("youtube", "exhausted", "", 4)
	m.Decorated("youtube", 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`commentlink_sessions_active 1`,
		`commentlink_searches_total{outcome="found",platform="youtube"} 1`,
		`commentlink_searches_total{outcome="exhausted",platform="youtube"} 1`,
		`commentlink_resolve_hits_total{tier="composite"} 1`,
		`commentlink_affordances_attached_total{platform="youtube"} 5`,
		`commentlink_search_attempts_count 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}
