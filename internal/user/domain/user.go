package domain

import (
	"errors"
	"slices"
)

// Scope names. Admin bypasses all scope checks; new registrants are assigned
// ScopeUser by the server, never a client-declared scope.
const (
	ScopeAdmin    = "admin"
	ScopeProvider = "provider"
	ScopeUser     = "user"
)

// User is the externally owned user identity referenced by sessions and
// tokens. ID is the stable subject identifier assigned by the upstream
// identity provider.
type User struct {
	ID       string
	Email    string
	Name     string
	Phone    string // optional
	Scopes   []string
	Tags     []string
	Verified bool
}

// HasScope reports whether the user holds the named scope.
func (u *User) HasScope(scope string) bool {
	return slices.Contains(u.Scopes, scope)
}

// Validate validates the user for persistence. Returns an error describing
// the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if len(u.Scopes) == 0 {
		u.Scopes = []string{ScopeUser}
	}
	return nil
}
