// Package service implements profile reads and writes for authenticated
// users. Credential and session changes live in the auth service; this one
// only touches the account row.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	auditdomain "auth-backend/internal/audit/domain"
	authservice "auth-backend/internal/auth/service"
	"auth-backend/internal/user/domain"
	"auth-backend/internal/user/repository"
)

// ErrUserNotFound is returned when the external identifier resolves to no
// active account.
var ErrUserNotFound = errors.New("user not found")

const maxDisplayNameLen = 100

// SessionRevoker invalidates every session a user holds. Satisfied by the
// session repository.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// EventLogger records an audit event.
type EventLogger interface {
	LogEvent(ctx context.Context, userID, action, metadata string)
}

// UpdateProfileInput holds the client-editable profile fields. Nil pointers
// leave the current value unchanged.
type UpdateProfileInput struct {
	DisplayName *string
	AvatarURL   *string
	DeviceID    string
}

// Service reads and mutates user profiles.
type Service struct {
	users    repository.Repository
	sessions SessionRevoker
	events   EventLogger
	log      *slog.Logger
}

func NewService(users repository.Repository, sessions SessionRevoker, events EventLogger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, sessions: sessions, events: events, log: log}
}

// Get returns the active account for the external identifier.
func (s *Service) Get(ctx context.Context, externalID string) (*domain.User, error) {
	u, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// UpdateProfile applies the given profile edits and returns the updated
// account. Contact fields are not editable here.
func (s *Service) UpdateProfile(ctx context.Context, externalID string, in UpdateProfileInput) (*domain.User, error) {
	u, err := s.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" || len(name) > maxDisplayNameLen {
			return nil, &authservice.ValidationError{Fields: map[string]string{
				"full_name": fmt.Sprintf("must be between 1 and %d characters", maxDisplayNameLen),
			}}
		}
		u.DisplayName = name
	}
	if in.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	if in.DeviceID != "" {
		u.LastDeviceID = in.DeviceID
	}
	u.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logEvent(ctx, externalID, auditdomain.ActionProfileWrite, "")
	return u, nil
}

// Deactivate soft-deletes the account and revokes every session it holds, so
// no outstanding token survives the deletion.
func (s *Service) Deactivate(ctx context.Context, externalID string) error {
	u, err := s.Get(ctx, externalID)
	if err != nil {
		return err
	}
	if err := s.users.Deactivate(ctx, externalID); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if err := s.sessions.RevokeAllForUser(ctx, u.ID); err != nil {
		// The account is already inactive, so validation rejects its tokens
		// regardless; log and move on.
		s.log.Warn("revoke sessions on deactivate failed", "user", externalID, "error", err)
	}
	s.logEvent(ctx, externalID, auditdomain.ActionDeactivate, "")
	return nil
}

func (s *Service) logEvent(ctx context.Context, userID, action, metadata string) {
	if s.events == nil {
		return
	}
	s.events.LogEvent(ctx, userID, action, metadata)
}
