package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auth-backend/internal/user/domain"
)

const uniqueViolation = "23505"

const userColumns = `id, external_id, email, mobile_number, provider, provider_uid,
	password_hash, full_name, avatar_url, email_verified, mobile_verified,
	active, last_device_id, last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByExternalID returns the user for the external identifier, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByMobile returns the user with the given mobile number, or nil if not found.
func (r *PostgresRepository) GetByMobile(ctx context.Context, mobile string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE mobile_number = $1`, mobile)
}

// GetByProviderUID returns the user linked to the upstream identity, or nil if not found.
func (r *PostgresRepository) GetByProviderUID(ctx context.Context, provider domain.Provider, uid string) (*domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_uid = $2`,
		string(provider), uid)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Create persists the user and assigns its internal row id. The user must have
// ExternalID set. A contact or provider-uid collision with another row returns
// ErrDuplicateContact; the uniqueness check and insert are a single statement,
// so two racing registrations produce exactly one winner.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (
			external_id, email, mobile_number, provider, provider_uid,
			password_hash, full_name, avatar_url, email_verified, mobile_verified,
			active, last_device_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id`,
		u.ExternalID,
		nullString(u.Email),
		nullString(u.Mobile),
		string(u.Provider),
		nullString(u.ProviderUID),
		nullString(u.PasswordHash),
		nullString(u.DisplayName),
		nullString(u.AvatarURL),
		u.EmailVerified,
		u.MobileVerified,
		u.Active,
		nullString(u.LastDeviceID),
		u.CreatedAt,
		u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateContact
		}
		return err
	}
	return nil
}

// Update writes the user's mutable fields. The external identifier and contact
// columns are never changed here; contact edits go through a dedicated
// re-verification path. Verification flags only move false→true.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			full_name       = $2,
			avatar_url      = $3,
			email_verified  = email_verified OR $4,
			mobile_verified = mobile_verified OR $5,
			last_device_id  = $6,
			updated_at      = $7
		WHERE external_id = $1`,
		u.ExternalID,
		nullString(u.DisplayName),
		nullString(u.AvatarURL),
		u.EmailVerified,
		u.MobileVerified,
		nullString(u.LastDeviceID),
		time.Now().UTC(),
	)
	return err
}

// LinkProvider attaches an upstream identity to an existing account, converting
// it to a delegated account. Racing links of the same uid resolve through the
// partial unique index on (provider, provider_uid).
func (r *PostgresRepository) LinkProvider(ctx context.Context, externalID string, provider domain.Provider, uid string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET provider = $2, provider_uid = $3, updated_at = $4
		WHERE external_id = $1`,
		externalID, string(provider), uid, time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateContact
		}
		return err
	}
	return nil
}

// RecordLogin overwrites the last-login timestamp and device tag. Called on
// every successful token issuance.
func (r *PostgresRepository) RecordLogin(ctx context.Context, externalID, deviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = $2, last_device_id = $3, updated_at = $2
		WHERE external_id = $1`,
		externalID, at, nullString(deviceID),
	)
	return err
}

// Deactivate soft-deletes the user. Idempotent: deactivating an inactive user
// is a no-op success.
func (r *PostgresRepository) Deactivate(ctx context.Context, externalID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET active = FALSE, updated_at = $2 WHERE external_id = $1`,
		externalID, time.Now().UTC(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u           domain.User
		email       sql.NullString
		mobile      sql.NullString
		providerUID sql.NullString
		passHash    sql.NullString
		name        sql.NullString
		avatar      sql.NullString
		device      sql.NullString
		lastLogin   sql.NullTime
		provider    string
	)
	err := row.Scan(
		&u.ID, &u.ExternalID, &email, &mobile, &provider, &providerUID,
		&passHash, &name, &avatar, &u.EmailVerified, &u.MobileVerified,
		&u.Active, &device, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Mobile = mobile.String
	u.Provider = domain.Provider(provider)
	u.ProviderUID = providerUID.String
	u.PasswordHash = passHash.String
	u.DisplayName = name.String
	u.AvatarURL = avatar.String
	u.LastDeviceID = device.String
	u.LastLoginAt = nullTimeToPtr(lastLogin)
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
