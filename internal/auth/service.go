// Package auth orchestrates login, refresh, and logout: it turns a verified
// upstream identity into a device login plus an access/refresh token pair, and
// rotates or revokes that login on later calls.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"trailblazer-user-service/internal/identity"
	"trailblazer-user-service/internal/metrics"
	"trailblazer-user-service/internal/security"
	sessiondomain "trailblazer-user-service/internal/session/domain"
	userdomain "trailblazer-user-service/internal/user/domain"
)

// ErrUnauthenticated covers every way a session or token can be dead: missing,
// malformed, expired, replayed, or orphaned. It is deliberately coarse so a
// client cannot learn why its session died.
var ErrUnauthenticated = errors.New("unauthenticated")

// Audit event actions emitted by the manager.
const (
	ActionLogin          = "auth.login"
	ActionRegister       = "auth.register"
	ActionRefresh        = "auth.refresh"
	ActionLogout         = "auth.logout"
	ActionReplayDetected = "auth.replay_detected"
	ActionSessionExpired = "auth.session_expired"
)

// UserRepo is the user collaborator consumed by the manager.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionRepo is the minimal device-login store needed by the manager.
type SessionRepo interface {
	Get(ctx context.Context, userID string, sessionID int64) (*sessiondomain.DeviceLogin, error)
	Create(ctx context.Context, l *sessiondomain.DeviceLogin) error
	Rotate(ctx context.Context, userID string, sessionID int64, prevRefreshedAt, refreshedAt, expiresAt time.Time) (bool, error)
	Delete(ctx context.Context, userID string, sessionID int64) error
}

// AuditLogger records auth events best-effort; implementations must not fail
// the calling operation.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, metadata string)
}

// Profile carries the registrant-supplied fields of a registration. Scopes
// are assigned by the server and cannot be declared by the client.
type Profile struct {
	Name  string
	Phone string
	Tags  []string
}

// AuthResult is the outcome of Login, Register, or Refresh. The HTTP layer
// returns AccessToken in the response body and RefreshToken only via the
// refresh cookie, expiring at SessionExpiresAt.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	UserID           string
	SessionID        int64
	SessionExpiresAt time.Time
}

// Manager implements login/register, refresh with rotation and replay
// detection, and logout over a device-login store.
type Manager struct {
	users     UserRepo
	sessions  SessionRepo
	verifier  identity.Verifier
	codec     *security.Codec
	accessTTL time.Duration
	audit     AuditLogger
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager returns a Manager with the given collaborators. audit may be nil;
// logger may be nil (falls back to a no-op logger).
func NewManager(
	users UserRepo,
	sessions SessionRepo,
	verifier identity.Verifier,
	codec *security.Codec,
	accessTTL time.Duration,
	audit AuditLogger,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		users:     users,
		sessions:  sessions,
		verifier:  verifier,
		codec:     codec,
		accessTTL: accessTTL,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

// Login verifies the upstream assertion and opens a new device login for the
// subject, creating the backing user from the assertion if it does not exist.
func (m *Manager) Login(ctx context.Context, assertion string) (*AuthResult, error) {
	return m.authenticate(ctx, assertion, Profile{}, ActionLogin)
}

// Register is Login with registrant-supplied profile fields for the created
// user. Scopes are always server-assigned; clients cannot declare a role.
func (m *Manager) Register(ctx context.Context, assertion string, profile Profile) (*AuthResult, error) {
	return m.authenticate(ctx, assertion, profile, ActionRegister)
}

func (m *Manager) authenticate(ctx context.Context, assertion string, profile Profile, action string) (*AuthResult, error) {
	as, err := m.verifier.Verify(ctx, assertion)
	if err != nil {
		return nil, err
	}
	user, err := m.users.GetByID(ctx, as.SubjectID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		name := profile.Name
		if name == "" {
			name = as.Name
		}
		user = &userdomain.User{
			ID:     as.SubjectID,
			Email:  as.Email,
			Name:   name,
			Phone:  profile.Phone,
			Scopes: []string{userdomain.ScopeUser},
			Tags:   profile.Tags,
		}
		if err := user.Validate(); err != nil {
			return nil, err
		}
		if err := m.users.Create(ctx, user); err != nil {
			return nil, err
		}
	}
	res, err := m.createSession(ctx, user)
	if err != nil {
		return nil, err
	}
	m.logEvent(ctx, user.ID, action, "")
	return res, nil
}

// createSession inserts a fresh device login keyed by the issuance second and
// mints the token pair for it.
func (m *Manager) createSession(ctx context.Context, user *userdomain.User) (*AuthResult, error) {
	now := m.now().UTC()
	login := &sessiondomain.DeviceLogin{
		UserID:      user.ID,
		SessionID:   now.Unix(),
		RefreshedAt: now,
		ExpiresAt:   now.Add(m.accessTTL),
	}
	if err := m.sessions.Create(ctx, login); err != nil {
		return nil, err
	}
	return m.mintPair(user, login, now)
}

// Refresh redeems a refresh token: validates it against the stored login,
// rotates the same login row, and mints a new pair. Validation order is fixed
// (decode, type, lookup, expiry, replay, user existence) because each failure
// triggers a different cleanup; the expiry/replay/user checks must not be
// reordered relative to each other.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	now := m.now().UTC()
	claims, login, user, err := m.validateRefresh(ctx, refreshToken, now)
	if err != nil {
		return nil, err
	}

	rotated, err := m.sessions.Rotate(ctx, login.UserID, login.SessionID,
		login.RefreshedAt, now, now.Add(m.accessTTL))
	if err != nil {
		return nil, err
	}
	if !rotated {
		// A concurrent refresh won the rotation; this token is now stale.
		m.handleReplay(ctx, claims)
		return nil, ErrUnauthenticated
	}
	login.RefreshedAt = now
	login.ExpiresAt = now.Add(m.accessTTL)

	res, err := m.mintPair(user, login, now)
	if err != nil {
		return nil, err
	}
	m.logEvent(ctx, user.ID, ActionRefresh, "")
	return res, nil
}

// Logout validates the refresh token like Refresh and deletes the login. An
// invalid token fails with ErrUnauthenticated; logout requires a currently
// valid session rather than succeeding as a no-op.
func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	now := m.now().UTC()
	_, login, user, err := m.validateRefresh(ctx, refreshToken, now)
	if err != nil {
		return err
	}
	if err := m.sessions.Delete(ctx, login.UserID, login.SessionID); err != nil {
		return err
	}
	m.logEvent(ctx, user.ID, ActionLogout, "")
	return nil
}

// validateRefresh runs the fixed refresh validation sequence against a single
// captured now. Expiry, replay, and orphaned-user failures delete the login
// before reporting ErrUnauthenticated; that cleanup is best-effort and never
// masks the authentication error.
func (m *Manager) validateRefresh(ctx context.Context, refreshToken string, now time.Time) (*security.Claims, *sessiondomain.DeviceLogin, *userdomain.User, error) {
	if refreshToken == "" {
		return nil, nil, nil, ErrUnauthenticated
	}
	claims, err := m.codec.Verify(refreshToken)
	if err != nil {
		return nil, nil, nil, ErrUnauthenticated
	}
	if claims.TokenType != security.TokenTypeRefresh || claims.SessionID == 0 {
		return nil, nil, nil, ErrUnauthenticated
	}

	login, err := m.sessions.Get(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if login == nil {
		return nil, nil, nil, ErrUnauthenticated
	}

	// Server-side state is authoritative even though the token's own exp
	// should have caught this already.
	if login.ExpiresAt.Before(now) {
		m.deleteLogin(ctx, login.UserID, login.SessionID)
		m.logEvent(ctx, login.UserID, ActionSessionExpired, "")
		return nil, nil, nil, ErrUnauthenticated
	}

	// A token minted before the last recorded rotation is a replay of a
	// superseded refresh token. Compare in whole seconds; iat has second
	// precision.
	if login.RefreshedAt.Unix() > claims.IssuedAt.Time.Unix() {
		m.handleReplay(ctx, claims)
		return nil, nil, nil, ErrUnauthenticated
	}

	user, err := m.users.GetByID(ctx, login.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	if user == nil {
		m.deleteLogin(ctx, login.UserID, login.SessionID)
		return nil, nil, nil, ErrUnauthenticated
	}
	return claims, login, user, nil
}

// handleReplay revokes the session a replayed token points at and records the
// security event.
func (m *Manager) handleReplay(ctx context.Context, claims *security.Claims) {
	metrics.ReplaysDetectedTotal.Inc()
	m.deleteLogin(ctx, claims.Subject, claims.SessionID)
	m.logEvent(ctx, claims.Subject, ActionReplayDetected, "")
	m.logger.Warn("refresh token replay detected",
		zap.String("user_id", claims.Subject),
		zap.Int64("session_id", claims.SessionID))
}

func (m *Manager) deleteLogin(ctx context.Context, userID string, sessionID int64) {
	if err := m.sessions.Delete(ctx, userID, sessionID); err != nil {
		m.logger.Error("delete device login",
			zap.String("user_id", userID),
			zap.Int64("session_id", sessionID),
			zap.Error(err))
	}
}

func (m *Manager) logEvent(ctx context.Context, userID, action, metadata string) {
	if m.audit != nil {
		m.audit.LogEvent(ctx, userID, action, metadata)
	}
}

// mintPair signs the access/refresh pair for the login. The refresh token's
// exp tracks the login's expires_at; the access token's exp is now+accessTTL,
// which is the same instant after a create or rotate.
func (m *Manager) mintPair(user *userdomain.User, login *sessiondomain.DeviceLogin, now time.Time) (*AuthResult, error) {
	access, err := m.codec.Sign(&security.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Name:      user.Name,
		Scopes:    user.Scopes,
		Tags:      user.Tags,
		TokenType: security.TokenTypeAccess,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := m.codec.Sign(&security.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(login.ExpiresAt),
		},
		SessionID: login.SessionID,
		TokenType: security.TokenTypeRefresh,
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		UserID:           user.ID,
		SessionID:        login.SessionID,
		SessionExpiresAt: login.ExpiresAt,
	}, nil
}
