package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trailblazer-user-service/internal/session/domain"
)

// PostgresRepository persists device logins in the device_logins table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a device-login repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get returns the login for (userID, sessionID), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, userID string, sessionID int64) (*domain.DeviceLogin, error) {
	const q = `SELECT user_id, session_id, refreshed_at, expires_at
		FROM device_logins WHERE user_id = $1 AND session_id = $2`
	l := &domain.DeviceLogin{}
	err := r.pool.QueryRow(ctx, q, userID, sessionID).
		Scan(&l.UserID, &l.SessionID, &l.RefreshedAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// Create inserts the login. A second login by the same user in the same
// second lands on the same composite key; the row's timestamps are refreshed
// rather than failing the insert.
func (r *PostgresRepository) Create(ctx context.Context, l *domain.DeviceLogin) error {
	const q = `INSERT INTO device_logins (user_id, session_id, refreshed_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, session_id)
		DO UPDATE SET refreshed_at = EXCLUDED.refreshed_at, expires_at = EXCLUDED.expires_at`
	_, err := r.pool.Exec(ctx, q, l.UserID, l.SessionID, l.RefreshedAt, l.ExpiresAt)
	return err
}

// Rotate advances the row's timestamps only if refreshed_at has not moved
// since the caller read it. The single conditional UPDATE makes the
// read-then-rotate sequence safe under concurrent refreshes: the losing
// request matches zero rows.
func (r *PostgresRepository) Rotate(ctx context.Context, userID string, sessionID int64, prevRefreshedAt, refreshedAt, expiresAt time.Time) (bool, error) {
	const q = `UPDATE device_logins SET refreshed_at = $4, expires_at = $5
		WHERE user_id = $1 AND session_id = $2 AND refreshed_at = $3`
	tag, err := r.pool.Exec(ctx, q, userID, sessionID, prevRefreshedAt, refreshedAt, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the login for (userID, sessionID). Missing rows are not an
// error.
func (r *PostgresRepository) Delete(ctx context.Context, userID string, sessionID int64) error {
	const q = `DELETE FROM device_logins WHERE user_id = $1 AND session_id = $2`
	_, err := r.pool.Exec(ctx, q, userID, sessionID)
	return err
}
