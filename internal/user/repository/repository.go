package repository

import (
	"context"

	"trailblazer-user-service/internal/user/domain"
)

// Repository defines persistence for users. Lookups return (nil, nil) for
// missing users; errors are reserved for storage failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	// Delete removes the user; the schema cascades the deletion to the user's
	// device logins.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int32) ([]*domain.User, error)
}
