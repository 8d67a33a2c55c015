package webutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateHash returns the hex SHA-256 of the parts joined by newlines.
// Used for stable identifiers derived from content.
func GenerateHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
