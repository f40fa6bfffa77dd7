package repository

import (
	"context"
	"errors"
	"time"

	"auth-backend/internal/user/domain"
)

// ErrDuplicateContact is returned by Create when the email or mobile is
// already claimed by another row. Produced from the database unique
// constraint, never from a check-then-insert.
var ErrDuplicateContact = errors.New("email or mobile already registered")

// Repository defines persistence for users.
type Repository interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByMobile(ctx context.Context, mobile string) (*domain.User, error)
	GetByProviderUID(ctx context.Context, provider domain.Provider, uid string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	// LinkProvider attaches an upstream identity to an existing account. A uid
	// already linked to another row returns ErrDuplicateContact.
	LinkProvider(ctx context.Context, externalID string, provider domain.Provider, uid string) error
	RecordLogin(ctx context.Context, externalID, deviceID string, at time.Time) error
	Deactivate(ctx context.Context, externalID string) error
}
