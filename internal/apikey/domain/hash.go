package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey returns the hex SHA-256 digest stored for a raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
