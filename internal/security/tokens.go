package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators. Both token kinds are signed with the same key
// pair; the "type" claim tells them apart, so callers must check TokenType
// after Verify — a successful decode alone does not prove the token was
// issued for the intended purpose.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Codec verification errors.
var (
	// ErrMalformedToken is returned when a token is structurally invalid
	// (not a JWT, or missing the required exp, iat, or sub claims).
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature check fails.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpiredToken is returned when the exp claim has passed.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the signed claim bundle for both token types.
// Access tokens carry sub, name, scopes, tags; refresh tokens carry sub and
// sid. Unused fields are omitted from the encoded token.
type Claims struct {
	jwt.RegisteredClaims
	Name      string   `json:"name,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SessionID int64    `json:"sid,omitempty"`
	TokenType string   `json:"type"`
}

// Codec signs and verifies tokens with an asymmetric key pair (RS256 for RSA,
// ES256 for ECDSA), so verification can run in processes that hold only the
// public key. The codec is stateless and safe for concurrent use.
type Codec struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
}

// NewCodec returns a Codec signing with privateKey and verifying with
// publicKey. privateKey may be nil for verify-only codecs.
func NewCodec(privateKey crypto.Signer, publicKey crypto.PublicKey) *Codec {
	return &Codec{privateKey: privateKey, publicKey: publicKey}
}

// Sign encodes and signs the claims. The signing method is chosen from the
// private key type: RS256 for RSA, ES256 for ECDSA.
func (c *Codec) Sign(claims *Claims) (string, error) {
	if c.privateKey == nil {
		return "", errors.New("codec has no signing key")
	}
	var method jwt.SigningMethod
	switch c.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", errors.New("unsupported signing key type")
	}
	return jwt.NewWithClaims(method, claims).SignedString(c.privateKey)
}

// Verify parses the token, checks the signature, and enforces presence of the
// exp, iat, and sub claims before any semantic use. Expiry is enforced against
// the wall clock. Verify does not check the type claim; that is the caller's
// responsibility.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return c.publicKey, nil },
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformedToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	if claims.IssuedAt == nil || claims.Subject == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
