// Package platform maps a navigated site to the structural selectors used to
// find comments, read their fields and place the share affordance.
//
// The set of profiles is closed: one value per supported site, selected by
// Identify. Selectors change whenever a platform ships new markup; update
// them here when resolution starts failing.
package platform

import (
	"net/url"
	"sort"
	"strings"
)

// Profile describes one supported site. Profiles are immutable values.
type Profile struct {
	Name    string
	Domains []string // host suffixes, matched on a label boundary

	CommentSelector   string // comment root nodes
	TextSelector      string // within a comment root
	UsernameSelector  string
	TimestampSelector string
	ActionBarSelector string // share affordance insertion point

	// NativeIDs is set when the comment root carries a stable element id.
	NativeIDs bool

	// Media-hosted comment streams (YouTube).
	MediaParam      string   // query parameter carrying the content id
	StripParams     []string // dropped from share links (position, referral)
	Progressive     bool     // comment stream is lazily rendered
	CommentsSection string   // container scrolled into view before loading
	ExpandButton    string   // clicked to expand a collapsed stream
}

// Media reports whether comments on this platform hang off a hosted video.
func (p Profile) Media() bool { return p.MediaParam != "" }

var profiles = []Profile{
	{
		Name:              "facebook",
		Domains:           []string{"facebook.com"},
		CommentSelector:   ".x1lliihq",
		TextSelector:      ".xdj266r",
		UsernameSelector:  ".x3nfvp2",
		TimestampSelector: ".x4k7w5x",
		ActionBarSelector: ".x78zum5",
	},
	{
		Name:              "twitter",
		Domains:           []string{"twitter.com", "x.com"},
		CommentSelector:   `[data-testid="tweet"]`,
		TextSelector:      `[data-testid="tweetText"]`,
		UsernameSelector:  `[data-testid="User-Name"]`,
		TimestampSelector: "time",
		ActionBarSelector: `[role="group"]`,
	},
	{
		Name:              "reddit",
		Domains:           []string{"reddit.com"},
		CommentSelector:   ".Comment",
		TextSelector:      ".RichTextJSON-root",
		UsernameSelector:  `a[data-testid="comment_author"]`,
		TimestampSelector: `a[data-testid="comment_timestamp"]`,
		ActionBarSelector: ".voteButtonsContainer + div",
	},
	{
		Name:              "youtube",
		Domains:           []string{"youtube.com"},
		CommentSelector:   "ytd-comment-thread-renderer",
		TextSelector:      "#content-text",
		UsernameSelector:  "#author-text",
		TimestampSelector: ".published-time-text",
		ActionBarSelector: "#toolbar",
		NativeIDs:         true,
		MediaParam:        "v",
		StripParams:       []string{"t", "ab_channel"},
		Progressive:       true,
		CommentsSection:   "ytd-comments",
		ExpandButton:      "#comments-button",
	},
	{
		Name:              "instagram",
		Domains:           []string{"instagram.com"},
		CommentSelector:   "._a9zr",
		TextSelector:      "._a9zs",
		UsernameSelector:  "._a9zc",
		TimestampSelector: "time",
		ActionBarSelector: "._abl-",
	},
	{
		Name:              "linkedin",
		Domains:           []string{"linkedin.com"},
		CommentSelector:   ".comments-comment-item",
		TextSelector:      ".comments-comment-item__main-content",
		UsernameSelector:  ".comments-post-meta__name-text",
		TimestampSelector: ".comments-comment-item__timestamp",
		ActionBarSelector: ".comments-comment-social-bar",
	},
}

// Identify returns the profile for the host of rawURL.
func Identify(rawURL string) (Profile, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Profile{}, false
	}
	return IdentifyHost(u.Hostname())
}

// IdentifyHost matches a bare host name.
func IdentifyHost(host string) (Profile, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return Profile{}, false
	}
	for _, p := range profiles {
		for _, d := range p.Domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return p, true
			}
		}
	}
	return Profile{}, false
}

// ByName returns the named profile.
func ByName(name string) (Profile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Names lists every supported platform, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// IsEnabled reports whether the user has the platform switched on. A
// platform missing from the preference map is enabled.
func IsEnabled(name string, prefs map[string]bool) bool {
	on, ok := prefs[name]
	if !ok {
		return true
	}
	return on
}
