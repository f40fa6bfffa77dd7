package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auth-backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session. The session must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	return createSession(ctx, r.db, s)
}

// GetByTokenHash returns the session for the token hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var (
		s         domain.Session
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_sessions WHERE token_hash = $1`,
		tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &revokedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	return &s, nil
}

// Revoke marks the session with the given token hash as revoked. A session
// already revoked keeps its original revocation timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash, time.Now().UTC(),
	)
	return err
}

// Rotate revokes the old session and inserts its replacement in one
// transaction. If the insert fails the revocation rolls back, so the caller
// never ends up with both tokens dead.
func (r *PostgresRepository) Rotate(ctx context.Context, oldTokenHash string, next *domain.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL`,
		oldTokenHash, time.Now().UTC(),
	); err != nil {
		return err
	}
	if err := createSession(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeAllForUser revokes every live session owned by the user. A single
// statement, so a session created before the sweep cannot silently survive it.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, time.Now().UTC(),
	)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createSession(ctx context.Context, db execer, s *domain.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, user_id, token_hash, expires_at, revoked_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, timeToNullTime(s.RevokedAt), s.CreatedAt,
	)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
