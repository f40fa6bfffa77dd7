package domain

import "time"

// Session represents one issued refresh token. Rows are keyed by the SHA-256
// hash of the token string; expiry and ownership are fixed at issuance, only
// RevokedAt ever transitions (nil → set, never back).
type Session struct {
	ID        string
	UserID    int64 // internal user row id; rows cascade with the user
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time // nil when not revoked
	CreatedAt time.Time
}

// Valid reports whether the session is still honored at the given instant:
// not revoked and not past its expiry. Evaluated fresh on every refresh call,
// never cached, so revocation takes effect immediately.
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
