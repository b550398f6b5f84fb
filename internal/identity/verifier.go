// Package identity validates upstream identity assertions (third-party signed
// ID tokens) and extracts a stable subject identifier. It proves who the
// caller is; session issuance and authorization live elsewhere.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidAssertion is returned whenever an upstream identity assertion is
// rejected: bad signature, unknown key id, expired, wrong audience or issuer,
// or a provider key-set fetch failure. The cause is deliberately not exposed
// to callers.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// Assertion is the verified content of an upstream identity token.
type Assertion struct {
	// SubjectID is the provider-stable user identifier (non-empty).
	SubjectID string
	Name      string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Audience  string
	Issuer    string
}

// Verifier validates an upstream identity assertion.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*Assertion, error)
}
