package inspect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/commentlink/platform"
)

// Candidate is a selector, the number of nodes it matched and their mean
// text density.
type Candidate struct {
	Selector string  `json:"selector"`
	Count    int     `json:"count"`
	Score    float64 `json:"score"`
	Platform string  `json:"platform,omitempty"`
}

// Analysis suggests selectors for a page whose markup changed. Field maps
// go from a selector relative to the container to a sample of its content.
type Analysis struct {
	Containers []Candidate       `json:"containers"`
	Container  string            `json:"container,omitempty"`
	Section    string            `json:"section,omitempty"` // element holding every container
	Text       map[string]string `json:"text,omitempty"`
	Username   map[string]string `json:"username,omitempty"`
	Timestamp  map[string]string `json:"timestamp,omitempty"`
	ActionBar  map[string]string `json:"action_bar,omitempty"`
}

var genericContainers = []string{
	`[data-testid*="comment"]`,
	`[class*="comment"]`,
	`[id*="comment"]`,
}

var (
	textPatterns      = []string{"p", "span", "div", `[class*="text"]`, `[class*="content"]`, `[data-testid*="text"]`, `[data-testid*="content"]`}
	usernamePatterns  = []string{"a", `[class*="user"]`, `[class*="author"]`, `[class*="name"]`, `[data-testid*="user"]`, `[data-testid*="author"]`, `[data-testid*="name"]`}
	timestampPatterns = []string{"time", `[class*="time"]`, `[class*="date"]`, "[datetime]", `[data-testid*="time"]`, `[data-testid*="date"]`}
	actionPatterns    = []string{`[role="group"]`, `[class*="action"]`, `[class*="toolbar"]`, `[class*="button"]`, `[class*="controls"]`, `[class*="footer"]`}

	timeLike = regexp.MustCompile(`\d|ago|min|hour|day`)
)

// Probe looks for comment containers with generic patterns and the known
// platform selectors, then inspects the first container found for field
// selectors.
func Probe(markup string) (Analysis, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Analysis{}, fmt.Errorf("inspect: probe: %w", err)
	}

	var a Analysis
	for _, sel := range genericContainers {
		if m := doc.Find(sel); m.Length() > 0 {
			a.Containers = append(a.Containers, Candidate{Selector: sel, Count: m.Length(), Score: density(m)})
		}
	}
	for _, name := range platform.Names() {
		p, _ := platform.ByName(name)
		if m := doc.Find(p.CommentSelector); m.Length() > 0 {
			a.Containers = append(a.Containers, Candidate{Selector: p.CommentSelector, Count: m.Length(), Score: density(m), Platform: name})
		}
	}
	if len(a.Containers) == 0 {
		return a, nil
	}

	// Known platform selectors win; otherwise the densest generic match.
	best := a.Containers[0]
	for _, c := range a.Containers[1:] {
		switch {
		case c.Platform != "" && best.Platform == "":
			best = c
		case (c.Platform == "") == (best.Platform == "") && c.Score > best.Score:
			best = c
		}
	}
	a.Container = best.Selector

	matched := doc.Find(a.Container)
	if anc := commonAncestor(matched); anc != nil {
		a.Section = specificSelector(doc.FindNodes(anc), doc.Selection)
	}
	first := matched.First()

	a.Text = fields(first, textPatterns, func(s *goquery.Selection) (string, bool) {
		t := strings.TrimSpace(s.Text())
		return sample(t, 50), len(t) > 10 && len(t) < 1000
	})
	a.Username = fields(first, usernamePatterns, func(s *goquery.Selection) (string, bool) {
		t := strings.TrimSpace(s.Text())
		return t, len(t) > 1 && len(t) < 50
	})
	a.Timestamp = fields(first, timestampPatterns, func(s *goquery.Selection) (string, bool) {
		t := strings.TrimSpace(s.Text())
		return t, t != "" && timeLike.MatchString(t)
	})
	a.ActionBar = fields(first, actionPatterns, func(s *goquery.Selection) (string, bool) {
		n := s.Find("button, a").Length()
		return fmt.Sprintf("%d actions", n), n > 0
	})
	return a, nil
}

func fields(container *goquery.Selection, patterns []string, accept func(*goquery.Selection) (string, bool)) map[string]string {
	out := make(map[string]string)
	for _, pat := range patterns {
		container.Find(pat).Each(func(_ int, s *goquery.Selection) {
			v, ok := accept(s)
			if !ok {
				return
			}
			if sel := specificSelector(s, container); sel != "" {
				out[sel] = v
			}
		})
	}
	return out
}

// specificSelector names s by id, first class, data-testid, or a tag that
// is unique within container, in that order.
func specificSelector(s, container *goquery.Selection) string {
	if id, _ := s.Attr("id"); id != "" {
		return "#" + id
	}
	if class, _ := s.Attr("class"); class != "" {
		if f := strings.Fields(class); len(f) > 0 {
			return "." + f[0]
		}
	}
	if tid, _ := s.Attr("data-testid"); tid != "" {
		return fmt.Sprintf(`[data-testid=%q]`, tid)
	}
	tag := goquery.NodeName(s)
	if container.Find(tag).Length() == 1 {
		return tag
	}
	return ""
}

func sample(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
