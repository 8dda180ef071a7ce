package idgen

import (
	"strings"
	"testing"
)

func TestNew_Format(t *testing.T) {
	id := New()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("New: unexpected format %q", id)
	}
	if id[14] != '7' {
		t.Errorf("New: version nibble %q, want 7", id[14])
	}
	if _, err := Parse(id); err != nil {
		t.Errorf("Parse(New()): %v", err)
	}
}

func TestSession_Prefix(t *testing.T) {
	a, b := Session(), Session()
	if !strings.HasPrefix(a, "ses_") {
		t.Errorf("got %q, want ses_ prefix", a)
	}
	if a == b {
		t.Error("duplicate session ids")
	}
	if _, err := Parse(strings.TrimPrefix(a, "ses_")); err != nil {
		t.Errorf("session id body is not a UUID: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error")
	}
}
