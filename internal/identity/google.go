package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCertsURL is Google's published x509 certificate set for Firebase
// (securetoken) ID tokens, keyed by kid.
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const issuerPrefix = "https://securetoken.google.com/"

// GoogleVerifier validates Firebase ID tokens against Google's published key
// set. The key set is fetched per verification; there is no long-lived cache,
// so a single Verify is slower than local token verification and a fetch
// failure rejects the assertion.
type GoogleVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	now       func() time.Time
}

// NewGoogleVerifier returns a verifier for ID tokens issued to projectID.
// certsURL and client may be zero values; they default to DefaultCertsURL and
// an HTTP client with a 10s timeout.
func NewGoogleVerifier(projectID, certsURL string, client *http.Client) *GoogleVerifier {
	if certsURL == "" {
		certsURL = DefaultCertsURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleVerifier{
		projectID: projectID,
		certsURL:  certsURL,
		client:    client,
		now:       time.Now,
	}
}

type googleClaims struct {
	jwt.RegisteredClaims
	Name     string           `json:"name,omitempty"`
	Email    string           `json:"email,omitempty"`
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
}

// Verify checks the assertion's signature against the fetched key set and
// evaluates each required claim check independently; any failure yields
// ErrInvalidAssertion. The clock is read once at entry.
func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (*Assertion, error) {
	if assertion == "" {
		return nil, ErrInvalidAssertion
	}
	now := v.now().UTC()

	claims := &googleClaims{}
	token, err := jwt.ParseWithClaims(assertion, claims,
		func(t *jwt.Token) (interface{}, error) { return v.signingKey(ctx, t) },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidAssertion
	}

	// Claim checks are evaluated independently of the library's validation so
	// that all of them run against the same "now".
	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(now) {
		return nil, ErrInvalidAssertion
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Time.After(now) {
		return nil, ErrInvalidAssertion
	}
	if !audienceMatches(claims.Audience, v.projectID) {
		return nil, ErrInvalidAssertion
	}
	if claims.Issuer != issuerPrefix+v.projectID {
		return nil, ErrInvalidAssertion
	}
	if claims.Subject == "" {
		return nil, ErrInvalidAssertion
	}
	if claims.AuthTime != nil && claims.AuthTime.Time.After(now) {
		return nil, ErrInvalidAssertion
	}

	return &Assertion{
		SubjectID: claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Audience:  v.projectID,
		Issuer:    claims.Issuer,
	}, nil
}

// signingKey resolves the token's kid against the freshly fetched cert set.
func (v *GoogleVerifier) signingKey(ctx context.Context, token *jwt.Token) (*rsa.PublicKey, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("assertion has no kid header")
	}
	certs, err := v.fetchCerts(ctx)
	if err != nil {
		return nil, err
	}
	certPEM, ok := certs[kid]
	if !ok {
		return nil, fmt.Errorf("kid %q not in provider key set", kid)
	}
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("provider cert for kid %q is not PEM", kid)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse provider cert: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("provider cert key type %T", cert.PublicKey)
	}
	return pub, nil
}

func (v *GoogleVerifier) fetchCerts(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch provider key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch provider key set: status %d", resp.StatusCode)
	}
	certs := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, fmt.Errorf("decode provider key set: %w", err)
	}
	return certs, nil
}

func audienceMatches(aud jwt.ClaimStrings, projectID string) bool {
	for _, a := range aud {
		if a == projectID {
			return true
		}
	}
	return false
}
