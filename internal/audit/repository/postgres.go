package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"trailblazer-user-service/internal/audit/domain"
)

// PostgresRepository persists audit logs in the audit_logs table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit log repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts the audit log. The entry must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.Action, a.IP, a.Metadata, a.CreatedAt,
	)
	return err
}

// ListByUser returns audit logs for userID, newest first, paginated by limit
// and offset.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, ip, metadata, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		a := &domain.AuditLog{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
