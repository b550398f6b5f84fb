package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trailblazer-user-service/internal/user/domain"
)

// PostgresRepository persists users in the users table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a user repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `id, email, name, phone, scopes, tags, verified`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Scopes, &u.Tags, &u.Verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// Create persists the user. The user must have ID set; it is the upstream
// provider's subject id and is not assigned here.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	const q = `INSERT INTO users (id, email, name, phone, scopes, tags, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q, u.ID, u.Email, u.Name, u.Phone, u.Scopes, u.Tags, u.Verified)
	return err
}

// Update overwrites the user's mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	const q = `UPDATE users SET email = $2, name = $3, phone = $4, scopes = $5, tags = $6, verified = $7
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, u.ID, u.Email, u.Name, u.Phone, u.Scopes, u.Tags, u.Verified)
	return err
}

// Delete removes the user; device_logins rows follow via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// List returns users ordered by id with limit and offset.
func (r *PostgresRepository) List(ctx context.Context, limit, offset int32) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Scopes, &u.Tags, &u.Verified); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
