package repository

import (
	"context"

	"auth-backend/internal/session/domain"
)

// Repository defines persistence for refresh sessions. Lookups and revocation
// are keyed by the token hash; see security.HashRefreshToken.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// Revoke marks the session revoked. Idempotent: revoking an already-revoked
	// session is a no-op success.
	Revoke(ctx context.Context, tokenHash string) error
	// Rotate revokes the old session and creates the replacement in a single
	// transaction, so no window exists where neither token is valid.
	Rotate(ctx context.Context, oldTokenHash string, next *domain.Session) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}
