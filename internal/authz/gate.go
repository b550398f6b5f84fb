// Package authz decides whether a presented access token may perform an
// operation. It only reads: token verification and policy evaluation never
// touch the session store, so a logged-out session's access token remains
// valid until it expires.
package authz

import (
	"context"
	"errors"

	"trailblazer-user-service/internal/authz/engine"
	"trailblazer-user-service/internal/security"
)

var (
	// ErrUnauthenticated means the access token is missing, malformed,
	// expired, or of the wrong type.
	ErrUnauthenticated = errors.New("authz: unauthenticated")

	// ErrForbidden means the token is valid but its scopes do not satisfy
	// the operation's requirements.
	ErrForbidden = errors.New("authz: forbidden")
)

// Identity is the authenticated caller extracted from an access token.
type Identity struct {
	Subject string
	Name    string
	Scopes  []string
	Tags    []string
}

// Gate authorizes bearer tokens against required scopes.
type Gate struct {
	codec *security.Codec
	eval  engine.Evaluator
}

// NewGate returns a Gate using codec to verify tokens and eval to decide
// scope requirements.
func NewGate(codec *security.Codec, eval engine.Evaluator) *Gate {
	return &Gate{codec: codec, eval: eval}
}

// Authorize verifies token and checks its scopes against required. It
// returns the caller's identity on success, ErrUnauthenticated when the
// token does not prove an identity, and ErrForbidden when it does but the
// scopes fall short.
func (g *Gate) Authorize(ctx context.Context, token string, required ...string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := g.codec.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if claims.TokenType != security.TokenTypeAccess {
		return nil, ErrUnauthenticated
	}
	dec, err := g.eval.Evaluate(ctx, claims.Scopes, required)
	if err != nil {
		return nil, err
	}
	if !dec.Allow {
		return nil, ErrForbidden
	}
	return &Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Scopes:  claims.Scopes,
		Tags:    claims.Tags,
	}, nil
}
