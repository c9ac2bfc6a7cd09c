package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a hex digest of input, used as a stable cache key for
// queries and embedding texts.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
