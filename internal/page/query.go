package page

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeQuery lowercases, trims and collapses whitespace so that trivially
// different spellings of the same query share a cache identity.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}

// HashQuery returns a stable hex digest of the normalized query, used as the
// retrieval-cache key and the in-flight de-duplication key.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}
