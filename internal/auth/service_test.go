package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"trailblazer-user-service/internal/identity"
	"trailblazer-user-service/internal/security"
	sessiondomain "trailblazer-user-service/internal/session/domain"
	userdomain "trailblazer-user-service/internal/user/domain"
)

type stubVerifier struct {
	as  *identity.Assertion
	err error
}

func (s *stubVerifier) Verify(ctx context.Context, assertion string) (*identity.Assertion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.as, nil
}

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u2 := *u
	r.byID[u.ID] = &u2
	return nil
}

func (r *memUserRepo) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

type loginKey struct {
	userID    string
	sessionID int64
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[loginKey]*sessiondomain.DeviceLogin
}

func (r *memSessionRepo) Get(ctx context.Context, userID string, sessionID int64) (*sessiondomain.DeviceLogin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.m[loginKey{userID, sessionID}]; ok {
		l2 := *l
		return &l2, nil
	}
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, l *sessiondomain.DeviceLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l2 := *l
	r.m[loginKey{l.UserID, l.SessionID}] = &l2
	return nil
}

func (r *memSessionRepo) Rotate(ctx context.Context, userID string, sessionID int64, prevRefreshedAt, refreshedAt, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.m[loginKey{userID, sessionID}]
	if !ok || !l.RefreshedAt.Equal(prevRefreshedAt) {
		return false, nil
	}
	l.RefreshedAt = refreshedAt
	l.ExpiresAt = expiresAt
	return true, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, userID string, sessionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, loginKey{userID, sessionID})
	return nil
}

func (r *memSessionRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func newTestManager(t *testing.T) (*Manager, *memUserRepo, *memSessionRepo) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	codec := security.NewCodec(key, key.Public())
	users := &memUserRepo{byID: map[string]*userdomain.User{}}
	sessions := &memSessionRepo{m: map[loginKey]*sessiondomain.DeviceLogin{}}
	verifier := &stubVerifier{as: &identity.Assertion{
		SubjectID: "uid-1",
		Name:      "Test User",
		Email:     "test@example.com",
	}}
	return NewManager(users, sessions, verifier, codec, time.Hour, nil, nil), users, sessions
}

func TestManager_LoginCreatesSessionAndPair(t *testing.T) {
	m, users, sessions := newTestManager(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)
	m.now = func() time.Time { return t0 }

	res, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.UserID != "uid-1" {
		t.Errorf("UserID = %q", res.UserID)
	}
	if res.SessionID != t0.Unix() {
		t.Errorf("SessionID = %d, want issuance second %d", res.SessionID, t0.Unix())
	}
	if !res.SessionExpiresAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("SessionExpiresAt = %v", res.SessionExpiresAt)
	}

	u, _ := users.GetByID(ctx, "uid-1")
	if u == nil {
		t.Fatal("login should have created the user")
	}
	if !reflect.DeepEqual(u.Scopes, []string{userdomain.ScopeUser}) {
		t.Errorf("Scopes = %v, want server-assigned [user]", u.Scopes)
	}

	l, _ := sessions.Get(ctx, "uid-1", res.SessionID)
	if l == nil {
		t.Fatal("device login should exist")
	}
	if !l.ExpiresAt.After(l.RefreshedAt) {
		t.Errorf("expires_at %v not after refreshed_at %v", l.ExpiresAt, l.RefreshedAt)
	}

	access, err := m.codec.Verify(res.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if access.TokenType != security.TokenTypeAccess || access.Subject != "uid-1" {
		t.Errorf("access claims: type=%q sub=%q", access.TokenType, access.Subject)
	}
	if access.Name != "Test User" {
		t.Errorf("access name = %q", access.Name)
	}
	if !reflect.DeepEqual(access.Scopes, []string{userdomain.ScopeUser}) {
		t.Errorf("access scopes = %v", access.Scopes)
	}

	refresh, err := m.codec.Verify(res.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}
	if refresh.TokenType != security.TokenTypeRefresh || refresh.SessionID != res.SessionID {
		t.Errorf("refresh claims: type=%q sid=%d", refresh.TokenType, refresh.SessionID)
	}
}

func TestManager_RegisterProfileAndIdempotence(t *testing.T) {
	m, users, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Register(ctx, "assertion", Profile{Name: "Given Name", Phone: "123456", Tags: []string{"beta"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	u, _ := users.GetByID(ctx, res.UserID)
	if u.Name != "Given Name" || u.Phone != "123456" {
		t.Errorf("profile not applied: name=%q phone=%q", u.Name, u.Phone)
	}
	if !reflect.DeepEqual(u.Tags, []string{"beta"}) {
		t.Errorf("Tags = %v", u.Tags)
	}

	// Re-register keeps the existing record.
	if _, err := m.Register(ctx, "assertion", Profile{Name: "Other"}); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	u, _ = users.GetByID(ctx, res.UserID)
	if u.Name != "Given Name" {
		t.Errorf("second register overwrote user: name=%q", u.Name)
	}
}

func TestManager_LoginInvalidAssertion(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.verifier = &stubVerifier{err: identity.ErrInvalidAssertion}
	if _, err := m.Login(context.Background(), "bad"); !errors.Is(err, identity.ErrInvalidAssertion) {
		t.Errorf("want ErrInvalidAssertion, got %v", err)
	}
}

func TestManager_RefreshRotatesAndDetectsReplay(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)
	m.now = func() time.Time { return t0 }

	login, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Thirty minutes later the original refresh token still works and the
	// same row is rotated.
	m.now = func() time.Time { return t0.Add(30 * time.Minute) }
	r1, err := m.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if r1.SessionID != login.SessionID {
		t.Errorf("rotation changed session id: %d -> %d", login.SessionID, r1.SessionID)
	}
	l, _ := sessions.Get(ctx, login.UserID, login.SessionID)
	if !l.RefreshedAt.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("refreshed_at = %v, want %v", l.RefreshedAt, t0.Add(30*time.Minute))
	}

	// Replaying the superseded token kills the session.
	m.now = func() time.Time { return t0.Add(31 * time.Minute) }
	if _, err := m.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("replayed refresh: want ErrUnauthenticated, got %v", err)
	}
	if l, _ := sessions.Get(ctx, login.UserID, login.SessionID); l != nil {
		t.Fatal("replay should delete the session")
	}

	// The winner's token dies with the session.
	if _, err := m.Refresh(ctx, r1.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("refresh after replay cleanup: want ErrUnauthenticated, got %v", err)
	}
}

func TestManager_RefreshRejectsAccessToken(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := m.Refresh(ctx, res.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("refresh with access token: want ErrUnauthenticated, got %v", err)
	}
	if _, err := m.Refresh(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("refresh with empty token: want ErrUnauthenticated, got %v", err)
	}
	if _, err := m.Refresh(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("refresh with garbage: want ErrUnauthenticated, got %v", err)
	}
}

func TestManager_RefreshExpiredSessionIsDeleted(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)
	m.now = func() time.Time { return t0 }

	res, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Past the session's expires_at but within the (resigned) token's own
	// window the server-side check must still win. Shorten the stored row
	// instead of waiting out the token.
	sessions.mu.Lock()
	sessions.m[loginKey{res.UserID, res.SessionID}].ExpiresAt = t0.Add(time.Minute)
	sessions.mu.Unlock()

	m.now = func() time.Time { return t0.Add(2 * time.Minute) }
	if _, err := m.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expired session: want ErrUnauthenticated, got %v", err)
	}
	if sessions.len() != 0 {
		t.Fatal("expired session row should be deleted")
	}
}

func TestManager_RefreshDeletedUser(t *testing.T) {
	m, users, sessions := newTestManager(t)
	ctx := context.Background()

	res, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	users.delete(res.UserID)

	if _, err := m.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("orphaned session: want ErrUnauthenticated, got %v", err)
	}
	if sessions.len() != 0 {
		t.Error("orphaned session row should be deleted")
	}
}

func TestManager_LogoutDeletesSession(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()

	res, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.Logout(ctx, res.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if sessions.len() != 0 {
		t.Fatal("logout should delete the session")
	}

	// Logout is not idempotent success: the token is now invalid.
	if err := m.Logout(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("second logout: want ErrUnauthenticated, got %v", err)
	}
	if _, err := m.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("refresh after logout: want ErrUnauthenticated, got %v", err)
	}
}

// rotateLoser simulates losing the rotation race: Rotate always reports a
// stale refreshed_at.
type rotateLoser struct {
	*memSessionRepo
}

func (r *rotateLoser) Rotate(ctx context.Context, userID string, sessionID int64, prev, refreshedAt, expiresAt time.Time) (bool, error) {
	return false, nil
}

func TestManager_RefreshLosesRotationRace(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()

	res, err := m.Login(ctx, "assertion")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	m.sessions = &rotateLoser{sessions}

	if _, err := m.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("lost rotation race: want ErrUnauthenticated, got %v", err)
	}
	if sessions.len() != 0 {
		t.Error("losing refresh should revoke the session")
	}
}
