// Package idgen generates session identifiers.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 produces time-sortable RFC 9562 identifiers.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every id of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string { return prefix + gen() }
}

// Session is the generator for session ids ("ses_<uuidv7>").
var Session Generator = Prefixed("ses_", UUIDv7())

// New returns a bare UUIDv7.
func New() string { return uuid.Must(uuid.NewV7()).String() }

// Parse validates a UUID and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: parse: %w", err)
	}
	return u.String(), nil
}
