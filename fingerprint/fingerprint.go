// Package fingerprint derives the portable identity of a comment.
//
// A Fingerprint travels inside share links, so its JSON field names are a
// wire format: links produced by earlier versions of the share button keep
// resolving.
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"unicode/utf16"

	"github.com/hazyhaar/commentlink/dom"
	"github.com/hazyhaar/commentlink/platform"
)

// Fingerprint identifies one comment by its visible content.
type Fingerprint struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"` // display string, never matched on
	Hash      string `json:"hash"`

	NativeID       string `json:"commentId,omitempty"`
	VideoID        string `json:"videoId,omitempty"`
	VideoTimestamp int    `json:"videoTimestamp,omitempty"` // seconds
}

// HashOf is the 31-multiplier string hash over UTF-16 code units, kept in a
// signed 32-bit accumulator and rendered as the lowercase hex of its
// absolute value. It is not collision resistant.
func HashOf(text string) string {
	if text == "" {
		return "0"
	}
	var acc int32
	for _, c := range utf16.Encode([]rune(text)) {
		acc = acc*31 + int32(c)
	}
	abs := int64(acc)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 16)
}

// Media is page-wide context attached to fingerprints on media platforms.
type Media struct {
	VideoID  string
	Position int // seconds; 0 when unknown
}

// Build reads a comment root through the profile's selectors. Missing
// fields are empty; Build never fails.
func Build(el dom.Element, p platform.Profile, m Media) Fingerprint {
	fp := Fingerprint{
		Text:      el.Text(p.TextSelector),
		Username:  el.Text(p.UsernameSelector),
		Timestamp: el.Text(p.TimestampSelector),
	}
	fp.Hash = HashOf(fp.Text)

	if p.NativeIDs {
		fp.NativeID = el.Attr("id")
	}
	if p.Media() && m.VideoID != "" {
		fp.VideoID = m.VideoID
		fp.VideoTimestamp = m.Position
	}
	return fp
}

// ProbeMedia collects the media context of a page. Any failure leaves the
// corresponding field empty.
func ProbeMedia(ctx context.Context, pageURL string, p platform.Profile, player dom.Player) Media {
	if !p.Media() {
		return Media{}
	}
	var m Media
	if u, err := url.Parse(pageURL); err == nil {
		m.VideoID = u.Query().Get(p.MediaParam)
	}
	if m.VideoID == "" || player == nil {
		return m
	}
	if pos, err := player.Position(ctx); err == nil && pos > 0 && !math.IsNaN(pos) {
		m.Position = int(math.Floor(pos))
	}
	return m
}

// Marshal encodes fp as compact JSON without HTML escaping.
func Marshal(fp Fingerprint) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fp); err != nil {
		return nil, fmt.Errorf("fingerprint: marshal: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON accepts the hash as a string or a JSON number. Older share
// buttons wrote the digest of empty text as the number 0.
func (fp *Fingerprint) UnmarshalJSON(data []byte) error {
	type plain Fingerprint
	var aux struct {
		plain
		Hash json.RawMessage `json:"hash"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*fp = Fingerprint(aux.plain)

	raw := bytes.TrimSpace(aux.Hash)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		fp.Hash = ""
	case raw[0] == '"':
		return json.Unmarshal(raw, &fp.Hash)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("hash: %w", err)
		}
		fp.Hash = n.String()
	}
	return nil
}

// Unmarshal decodes a fingerprint. The text field is required.
func Unmarshal(data []byte) (Fingerprint, error) {
	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: unmarshal: %w", err)
	}
	if fp.Text == "" && fp.Hash == "" && fp.NativeID == "" {
		return Fingerprint{}, fmt.Errorf("fingerprint: unmarshal: no identifying field")
	}
	return fp, nil
}
