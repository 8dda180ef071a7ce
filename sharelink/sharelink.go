// Package sharelink encodes fingerprints into shareable page URLs and
// decodes them back, and defines the scroll-to-comment message.
package sharelink

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/platform"
)

// Param is the query parameter carrying the encoded fingerprint.
const Param = "shared_comment"

// ActionScrollToComment is the only message action acted upon.
const ActionScrollToComment = "scrollToComment"

// ErrMalformed wraps every decoding failure of a shared link or message.
var ErrMalformed = errors.New("sharelink: malformed")

// Build returns pageURL with fp attached. On media platforms the position
// and referral parameters are dropped and the content id is forced to the
// fingerprint's video id.
func Build(pageURL string, fp fingerprint.Fingerprint, p platform.Profile) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("sharelink: build: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("sharelink: build: %q is not an absolute URL", pageURL)
	}

	q := u.Query()
	if p.Media() {
		for _, k := range p.StripParams {
			q.Del(k)
		}
		if fp.VideoID != "" {
			q.Set(p.MediaParam, fp.VideoID)
		}
	}

	data, err := fingerprint.Marshal(fp)
	if err != nil {
		return "", fmt.Errorf("sharelink: build: %w", err)
	}
	q.Set(Param, string(data))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Parse extracts the fingerprint from a shared link. ok is false when the
// URL carries no fingerprint; a present but undecodable one yields an error
// wrapping ErrMalformed.
func Parse(rawURL string) (fp fingerprint.Fingerprint, ok bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fp, false, fmt.Errorf("%w: url: %v", ErrMalformed, err)
	}
	raw := u.Query().Get(Param)
	if raw == "" {
		return fp, false, nil
	}
	fp, err = fingerprint.Unmarshal([]byte(raw))
	if err != nil {
		return fp, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fp, true, nil
}

// Strip removes the fingerprint parameter from rawURL.
func Strip(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if !q.Has(Param) {
		return rawURL
	}
	q.Del(Param)
	u.RawQuery = q.Encode()
	return u.String()
}

// Message is the cross-context request to scroll to a comment.
type Message struct {
	Action      string                   `json:"action"`
	CommentData *fingerprint.Fingerprint `json:"commentData,omitempty"`
}

// ScrollTo builds a scrollToComment message.
func ScrollTo(fp fingerprint.Fingerprint) Message {
	return Message{Action: ActionScrollToComment, CommentData: &fp}
}

// DecodeMessage parses a message. Unknown actions decode fine; a
// scrollToComment without comment data does not.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	if m.Action == ActionScrollToComment && (m.CommentData == nil || m.CommentData.Text == "" && m.CommentData.Hash == "") {
		return Message{}, fmt.Errorf("%w: message: scrollToComment without commentData", ErrMalformed)
	}
	return m, nil
}
