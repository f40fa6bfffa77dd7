package repository

import (
	"context"
	"database/sql"

	"auth-backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an auth event repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the event. The event must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.AuthEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_events (id, user_id, action, ip, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID,
		sql.NullString{String: e.UserID, Valid: e.UserID != ""},
		e.Action,
		e.IP,
		sql.NullString{String: e.Metadata, Valid: e.Metadata != ""},
		e.CreatedAt,
	)
	return err
}

// ListByUser returns events for the given user, newest first, paginated by
// limit and offset. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuthEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action, ip, metadata, created_at
		FROM auth_events WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuthEvent
	for rows.Next() {
		var (
			e    domain.AuthEvent
			uid  sql.NullString
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &uid, &e.Action, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = uid.String
		e.Metadata = meta.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
