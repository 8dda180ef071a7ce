// Package config holds the user options that shape sharing and
// highlighting, the live store that distributes them, and the daemon
// configuration file.
package config

import (
	"regexp"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/platform"
)

// Defaults.
const (
	DefaultHighlightColor    = "#FFEB3B"
	DefaultHighlightDuration = 2.0 // seconds
	DefaultButtonStyle       = "default"

	maxHighlightDuration = 60.0
)

// Options are the user preferences. The JSON names match the settings
// document written by the options page.
type Options struct {
	Platforms         map[string]bool `json:"platforms" yaml:"platforms"`
	HighlightColor    string          `json:"highlightColor" yaml:"highlight_color"`
	HighlightDuration float64         `json:"highlightDuration" yaml:"highlight_duration"`
	ButtonStyle       string          `json:"buttonStyle" yaml:"button_style"`
}

// Default returns the options used when nothing is configured.
func Default() Options {
	o := Options{Platforms: make(map[string]bool)}
	for _, name := range platform.Names() {
		o.Platforms[name] = true
	}
	o.HighlightColor = DefaultHighlightColor
	o.HighlightDuration = DefaultHighlightDuration
	o.ButtonStyle = DefaultButtonStyle
	return o
}

var colorRe = regexp.MustCompile(`^(#[0-9a-fA-F]{3}|#[0-9a-fA-F]{6}|[a-zA-Z]{3,20}|(rgb|rgba|hsl|hsla)\([0-9.,%\s]+\))$`)

// Normalize returns a copy of o with missing or invalid fields replaced by
// their defaults. Unknown platform names are dropped; known ones missing
// from the map are enabled.
func (o Options) Normalize() Options {
	d := Default()
	out := Options{Platforms: d.Platforms}
	for name, on := range o.Platforms {
		if _, ok := platform.ByName(name); ok {
			out.Platforms[name] = on
		}
	}

	out.HighlightColor = o.HighlightColor
	if !colorRe.MatchString(out.HighlightColor) {
		out.HighlightColor = d.HighlightColor
	}
	out.HighlightDuration = o.HighlightDuration
	if out.HighlightDuration <= 0 || out.HighlightDuration > maxHighlightDuration {
		out.HighlightDuration = d.HighlightDuration
	}
	out.ButtonStyle = o.ButtonStyle
	if out.ButtonStyle != "default" && out.ButtonStyle != "compact" {
		out.ButtonStyle = d.ButtonStyle
	}
	return out
}

// Enabled reports whether the named platform is switched on.
func (o Options) Enabled(name string) bool {
	return platform.IsEnabled(name, o.Platforms)
}

// Highlight returns the reveal style.
func (o Options) Highlight() dom.HighlightStyle {
	return dom.HighlightStyle{Color: o.HighlightColor, Duration: o.HighlightDuration}
}

// clone deep-copies the platform map.
func (o Options) clone() Options {
	m := make(map[string]bool, len(o.Platforms))
	for k, v := range o.Platforms {
		m[k] = v
	}
	o.Platforms = m
	return o
}
