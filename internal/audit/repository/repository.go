package repository

import (
	"context"

	"auth-backend/internal/audit/domain"
)

// Repository defines persistence for auth events.
type Repository interface {
	Create(ctx context.Context, e *domain.AuthEvent) error
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuthEvent, error)
}
