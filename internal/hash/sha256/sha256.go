// Package sha256 computes content fingerprints for extracted page text.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash streams data through SHA-256 and returns the hex digest.
func (h *Hasher) Hash(data io.Reader) (string, error) {
	sum := sha256.New()
	if _, err := io.Copy(sum, data); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
