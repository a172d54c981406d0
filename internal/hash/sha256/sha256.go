// Package sha256 fingerprints article bodies.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher digests article bodies with SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint hashes content with whitespace runs collapsed, so re-flowed copies of the same
// body compare equal. Empty content has an empty fingerprint.
func (h *Hasher) Fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	if normalized == "" {
		return ""
	}
	digest, _ := h.Hash([]byte(normalized))
	return digest
}
