package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// Session rows are keyed by this hash so a database leak does not leak bearer
// credentials; lookups still behave as find-by-token to callers.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
