package session

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// idCharset matches the spec's session id alphabet: [A-Za-z0-9_-]+.
var idCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// GenerateID returns a short opaque token in the session id charset: the
// first 12 hex digits of a UUID4 with its hyphens removed. That keeps 48 of
// the UUID's random bits, so collisions are likelier than for a full UUID.
func GenerateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ValidID reports whether id is a non-empty string drawn from the session
// id charset.
func ValidID(id string) bool {
	return id != "" && idCharset.MatchString(id)
}
