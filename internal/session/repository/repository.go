package repository

import (
	"context"
	"time"

	"trailblazer-user-service/internal/session/domain"
)

// Repository defines persistence for device logins.
//
// Rotate is the concurrency-critical operation: it bumps refreshed_at and
// expires_at only if the row's refreshed_at still equals prevRefreshedAt.
// Of two concurrent refreshes holding the same token, at most one rotation
// commits; the loser observes rotated == false and must treat the token as
// replayed.
type Repository interface {
	// Get returns the login for (userID, sessionID), or nil if absent.
	Get(ctx context.Context, userID string, sessionID int64) (*domain.DeviceLogin, error)
	// Create persists the login. Re-login in the same second (same composite
	// key) refreshes the existing row instead of failing.
	Create(ctx context.Context, l *domain.DeviceLogin) error
	// Rotate conditionally advances the row's timestamps; returns whether the
	// rotation was committed.
	Rotate(ctx context.Context, userID string, sessionID int64, prevRefreshedAt, refreshedAt, expiresAt time.Time) (bool, error)
	// Delete removes the login. Deleting an absent login is not an error.
	Delete(ctx context.Context, userID string, sessionID int64) error
}
