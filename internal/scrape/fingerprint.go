package scrape

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable digest over an ordered link set. The join
// is positional, so reordering the same links produces a different
// fingerprint. An empty set yields the digest of the empty string.
func Fingerprint(links []string) string {
	h := sha1.Sum([]byte(strings.Join(links, ",")))
	return hex.EncodeToString(h[:])
}
