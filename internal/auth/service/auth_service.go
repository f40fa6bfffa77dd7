// Package service implements the token lifecycle: registration, login,
// refresh, revocation, and access validation. All state transitions on
// sessions and accounts happen here; handlers only translate the wire format.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditdomain "auth-backend/internal/audit/domain"
	"auth-backend/internal/identity"
	"auth-backend/internal/ratelimit"
	"auth-backend/internal/security"
	sessiondomain "auth-backend/internal/session/domain"
	sessionrepo "auth-backend/internal/session/repository"
	userdomain "auth-backend/internal/user/domain"
	userrepo "auth-backend/internal/user/repository"
)

var (
	// ErrInvalidCredentials covers every login failure: unknown contact, wrong
	// password, inactive account, delegated account without a password. One
	// error for all of them so responses don't reveal which part failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers every token rejection on refresh, revoke, and
	// validate: bad signature, expired, revoked, unknown, wrong kind, or the
	// owning account gone or inactive.
	ErrInvalidToken = errors.New("invalid or expired token")
)

const (
	minPasswordLen = 8
	maxPasswordLen = 100
)

// ValidationError carries per-field input failures. Handlers map it to a 400
// with the field map in the response body.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// EventLogger records an audit event. Implementations must not fail the
// calling operation.
type EventLogger interface {
	LogEvent(ctx context.Context, userID, action, metadata string)
}

// TokenPair is the issued credential pair handed to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RegisterInput holds registration fields. At least one of Email or Mobile is
// required.
type RegisterInput struct {
	Email       string
	Mobile      string
	Password    string
	DisplayName string
	AvatarURL   string
	DeviceID    string
}

// LoginInput holds password login fields. Exactly one of Email or Mobile
// identifies the account.
type LoginInput struct {
	Email    string
	Mobile   string
	Password string
	DeviceID string
}

// ExternalLoginInput holds a delegated login: an assertion issued upstream
// (Firebase ID token, Google ID token, OTP verification receipt).
type ExternalLoginInput struct {
	Provider  string
	Assertion string
	DeviceID  string
}

// TokenService orchestrates the token lifecycle over the user and session
// stores. Safe for concurrent use.
type TokenService struct {
	users    userrepo.Repository
	sessions sessionrepo.Repository
	codec    *security.TokenCodec
	hasher   *security.Hasher
	verifier identity.Verifier
	limiter  ratelimit.Limiter
	events   EventLogger
	clientIP func(context.Context) string
	rotate   bool
	log      *slog.Logger

	nowF func() time.Time
}

// Deps wires the service's collaborators. Verifier, Limiter, Events, and
// ClientIP may be nil; the corresponding behavior is disabled.
type Deps struct {
	Users    userrepo.Repository
	Sessions sessionrepo.Repository
	Codec    *security.TokenCodec
	Hasher   *security.Hasher
	Verifier identity.Verifier
	Limiter  ratelimit.Limiter
	Events   EventLogger
	ClientIP func(context.Context) string
	Rotate   bool
	Log      *slog.Logger
}

func NewTokenService(d Deps) *TokenService {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &TokenService{
		users:    d.Users,
		sessions: d.Sessions,
		codec:    d.Codec,
		hasher:   d.Hasher,
		verifier: d.Verifier,
		limiter:  d.Limiter,
		events:   d.Events,
		clientIP: d.ClientIP,
		rotate:   d.Rotate,
		log:      log,
		nowF:     time.Now,
	}
}

// Register creates a password account and returns its profile. No tokens are
// issued here; the client logs in afterwards. A contact collision returns
// userrepo.ErrDuplicateContact; the database constraint decides the winner
// between racing registrations.
func (s *TokenService) Register(ctx context.Context, in RegisterInput) (*userdomain.User, error) {
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowF().UTC()
	u := &userdomain.User{
		ExternalID:   uuid.NewString(),
		Email:        strings.TrimSpace(in.Email),
		Mobile:       strings.TrimSpace(in.Mobile),
		Provider:     userdomain.ProviderPassword,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		AvatarURL:    strings.TrimSpace(in.AvatarURL),
		Active:       true,
		LastDeviceID: in.DeviceID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("build user: %w", err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logEvent(ctx, u.ExternalID, auditdomain.ActionRegister, "provider=password")
	return u, nil
}

// Login authenticates a password account by email or mobile and issues a new
// token pair. Prior sessions stay valid; each login is an independent session.
func (s *TokenService) Login(ctx context.Context, in LoginInput) (*TokenPair, *userdomain.User, error) {
	contact := strings.TrimSpace(in.Email)
	if contact == "" {
		contact = strings.TrimSpace(in.Mobile)
	}
	if contact == "" || in.Password == "" {
		return nil, nil, ErrInvalidCredentials
	}
	if err := s.allow(ctx, contact); err != nil {
		return nil, nil, err
	}

	var (
		u   *userdomain.User
		err error
	)
	if e := strings.TrimSpace(in.Email); e != "" {
		u, err = s.users.GetByEmail(ctx, e)
	} else {
		u, err = s.users.GetByMobile(ctx, strings.TrimSpace(in.Mobile))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.Active || u.Provider.Delegated() || u.PasswordHash == "" {
		s.logEvent(ctx, "", auditdomain.ActionLoginFailed, "contact="+contact)
		return nil, nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(in.Password)); err != nil {
		s.logEvent(ctx, u.ExternalID, auditdomain.ActionLoginFailed, "reason=bad_password")
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, u, in.DeviceID)
	if err != nil {
		return nil, nil, err
	}
	s.logEvent(ctx, u.ExternalID, auditdomain.ActionLogin, "provider=password")
	return pair, u, nil
}

// ExternalLogin verifies a delegated identity assertion, resolves or creates
// the local account, and issues a token pair. The upstream claims are the
// source of truth for profile and verification flags.
func (s *TokenService) ExternalLogin(ctx context.Context, in ExternalLoginInput) (*TokenPair, *userdomain.User, error) {
	if s.verifier == nil {
		return nil, nil, errors.New("external login not configured")
	}
	provider := userdomain.Provider(in.Provider)
	if !provider.Delegated() {
		return nil, nil, &ValidationError{Fields: map[string]string{"provider": "unsupported provider"}}
	}
	// The assertion is opaque until the gateway verifies it, so the only
	// per-caller key available here is the client address. A shared
	// per-provider bucket would let one client starve everyone else.
	if s.clientIP != nil {
		if ip := s.clientIP(ctx); ip != "" {
			if err := s.allow(ctx, "ext:"+ip); err != nil {
				return nil, nil, err
			}
		}
	}

	claims, err := s.verifier.Verify(ctx, in.Provider, in.Assertion)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidIdentity) {
			s.logEvent(ctx, "", auditdomain.ActionLoginFailed, "provider="+in.Provider)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("verify identity: %w", err)
	}

	u, err := s.resolveExternal(ctx, provider, claims, in.DeviceID)
	if err != nil {
		return nil, nil, err
	}
	if !u.Active {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, u, in.DeviceID)
	if err != nil {
		return nil, nil, err
	}
	s.logEvent(ctx, u.ExternalID, auditdomain.ActionLogin, "provider="+in.Provider)
	return pair, u, nil
}

// resolveExternal maps verified claims to a local account: by provider uid
// first, then by email (linking the upstream identity to the existing
// account), then by creating a fresh account. A create losing a race to a
// concurrent login retries the uid lookup once.
func (s *TokenService) resolveExternal(ctx context.Context, provider userdomain.Provider, claims *identity.Claims, deviceID string) (*userdomain.User, error) {
	u, err := s.users.GetByProviderUID(ctx, provider, claims.UID)
	if err != nil {
		return nil, fmt.Errorf("lookup by provider uid: %w", err)
	}
	if u != nil {
		return s.syncClaims(ctx, u, claims)
	}

	if claims.Email != "" {
		u, err = s.users.GetByEmail(ctx, claims.Email)
		if err != nil {
			return nil, fmt.Errorf("lookup by email: %w", err)
		}
		if u != nil {
			if err := s.users.LinkProvider(ctx, u.ExternalID, provider, claims.UID); err != nil {
				return nil, fmt.Errorf("link provider: %w", err)
			}
			u.Provider = provider
			u.ProviderUID = claims.UID
			return s.syncClaims(ctx, u, claims)
		}
	}

	now := s.nowF().UTC()
	u = &userdomain.User{
		ExternalID:     uuid.NewString(),
		Email:          claims.Email,
		Mobile:         claims.Mobile,
		Provider:       provider,
		ProviderUID:    claims.UID,
		DisplayName:    claims.DisplayName,
		AvatarURL:      claims.AvatarURL,
		EmailVerified:  claims.EmailVerified,
		MobileVerified: claims.MobileVerified,
		Active:         true,
		LastDeviceID:   deviceID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("build user from claims: %w", err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateContact) {
			// Lost the race to a concurrent first login for the same identity.
			u, err = s.users.GetByProviderUID(ctx, provider, claims.UID)
			if err != nil {
				return nil, fmt.Errorf("lookup after create race: %w", err)
			}
			if u != nil {
				return u, nil
			}
			return nil, userrepo.ErrDuplicateContact
		}
		return nil, err
	}
	return u, nil
}

// syncClaims pushes the upstream profile and verification flags onto the local
// row. Best effort on the write; the in-memory copy is authoritative for this
// request either way.
func (s *TokenService) syncClaims(ctx context.Context, u *userdomain.User, claims *identity.Claims) (*userdomain.User, error) {
	changed := false
	if claims.DisplayName != "" && claims.DisplayName != u.DisplayName {
		u.DisplayName = claims.DisplayName
		changed = true
	}
	if claims.AvatarURL != "" && claims.AvatarURL != u.AvatarURL {
		u.AvatarURL = claims.AvatarURL
		changed = true
	}
	if claims.EmailVerified && !u.EmailVerified {
		u.EmailVerified = true
		changed = true
	}
	if claims.MobileVerified && !u.MobileVerified {
		u.MobileVerified = true
		changed = true
	}
	if changed {
		if err := s.users.Update(ctx, u); err != nil {
			s.log.Warn("sync upstream claims failed", "user", u.ExternalID, "error", err)
		}
	}
	return u, nil
}

// Refresh exchanges a valid refresh token for a new pair. With rotation on
// (the default) the presented token is revoked and replaced atomically; with
// rotation off it stays valid and only a new access token is minted. Every
// rejection is ErrInvalidToken.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	hash := security.HashRefreshToken(refreshToken)
	sess, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	now := s.nowF()
	if sess == nil || !sess.Valid(now) {
		return nil, ErrInvalidToken
	}

	u, err := s.users.GetByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, ErrInvalidToken
	}

	access, _, err := s.codec.IssueAccess(u.ExternalID, accessProfile(u))
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.codec.AccessTTLSeconds(),
	}
	if s.rotate {
		next, nextExpiry, err := s.codec.IssueRefresh(u.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("issue refresh token: %w", err)
		}
		err = s.sessions.Rotate(ctx, hash, &sessiondomain.Session{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			TokenHash: security.HashRefreshToken(next),
			ExpiresAt: nextExpiry,
			CreatedAt: now.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("rotate session: %w", err)
		}
		pair.RefreshToken = next
	}
	s.logEvent(ctx, u.ExternalID, auditdomain.ActionRefresh, "")
	return pair, nil
}

// Revoke invalidates the session behind a refresh token. The token is looked
// up by hash without decoding, so an expired-but-real token still revokes
// cleanly. Unknown tokens return ErrInvalidToken; revoking twice succeeds.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	hash := security.HashRefreshToken(refreshToken)
	sess, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		return ErrInvalidToken
	}
	if err := s.sessions.Revoke(ctx, hash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logEvent(ctx, "", auditdomain.ActionLogout, "")
	return nil
}

// RevokeAllForUser invalidates every session the user holds, on every device.
func (s *TokenService) RevokeAllForUser(ctx context.Context, externalID string) error {
	u, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return ErrInvalidToken
	}
	if err := s.sessions.RevokeAllForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logEvent(ctx, externalID, auditdomain.ActionLogout, "scope=all")
	return nil
}

// ValidateAccess checks an access token and returns its claims together with
// the current account row. The owner is re-checked on every call, so a
// deactivated account's outstanding access tokens die immediately.
func (s *TokenService) ValidateAccess(ctx context.Context, accessToken string) (*security.AccessClaims, *userdomain.User, error) {
	claims, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	u, err := s.users.GetByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.Active {
		return nil, nil, ErrInvalidToken
	}
	return claims, u, nil
}

// issuePair mints an access+refresh pair, persists the refresh session, and
// records the login. The session row must exist before the tokens reach the
// client, so a storage failure aborts issuance.
func (s *TokenService) issuePair(ctx context.Context, u *userdomain.User, deviceID string) (*TokenPair, error) {
	access, _, err := s.codec.IssueAccess(u.ExternalID, accessProfile(u))
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExpiry, err := s.codec.IssueRefresh(u.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	now := s.nowF().UTC()
	err = s.sessions.Create(ctx, &sessiondomain.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: security.HashRefreshToken(refresh),
		ExpiresAt: refreshExpiry,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.users.RecordLogin(ctx, u.ExternalID, deviceID, now); err != nil {
		s.log.Warn("record login failed", "user", u.ExternalID, "error", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.codec.AccessTTLSeconds(),
	}, nil
}

func (s *TokenService) allow(ctx context.Context, identifier string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Allow(ctx, identifier)
}

func (s *TokenService) logEvent(ctx context.Context, userID, action, metadata string) {
	if s.events == nil {
		return
	}
	s.events.LogEvent(ctx, userID, action, metadata)
}

func accessProfile(u *userdomain.User) security.AccessProfile {
	return security.AccessProfile{
		Email:       u.Email,
		Mobile:      u.Mobile,
		DisplayName: u.DisplayName,
	}
}

func validateRegister(in RegisterInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Email) == "" && strings.TrimSpace(in.Mobile) == "" {
		fields["contact"] = "email or mobile_number is required"
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		fields["full_name"] = "full name is required"
	}
	switch n := len(in.Password); {
	case n < minPasswordLen:
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLen)
	case n > maxPasswordLen:
		fields["password"] = fmt.Sprintf("must be at most %d characters", maxPasswordLen)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
