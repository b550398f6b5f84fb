package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"trailblazer-user-service/internal/auth"
	"trailblazer-user-service/internal/identity"
	"trailblazer-user-service/internal/metrics"
	"trailblazer-user-service/internal/server/middleware"
)

// refreshCookieName is the cookie carrying the refresh token. The token never
// appears in a response body.
const refreshCookieName = "refresh"

// AuthService is the session manager surface the auth handlers need.
type AuthService interface {
	Login(ctx context.Context, assertion string) (*auth.AuthResult, error)
	Register(ctx context.Context, assertion string, profile auth.Profile) (*auth.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Auth serves the login, register, refresh, and logout endpoints.
type Auth struct {
	svc          AuthService
	secureCookie bool
	logger       *zap.Logger
}

// NewAuth returns auth handlers backed by svc. secureCookie marks refresh
// cookies Secure; set it in production.
func NewAuth(svc AuthService, secureCookie bool, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{svc: svc, secureCookie: secureCookie, logger: logger}
}

type registerRequest struct {
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Tags  []string `json:"tags"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges an upstream identity assertion (bearer token) for a token
// pair. The refresh token travels only in the cookie.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	assertion := middleware.ExtractBearer(r)
	if assertion == "" {
		metrics.LoginsTotal.WithLabelValues("login", "failure").Inc()
		respondError(w, http.StatusUnauthorized, "missing identity assertion")
		return
	}
	res, err := h.svc.Login(r.Context(), assertion)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("login", "failure").Inc()
		h.respondAuthError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("login", "success").Inc()
	h.respondTokenPair(w, res)
}

// Register is Login plus profile fields for a first-time user.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	assertion := middleware.ExtractBearer(r)
	if assertion == "" {
		metrics.LoginsTotal.WithLabelValues("register", "failure").Inc()
		respondError(w, http.StatusUnauthorized, "missing identity assertion")
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.LoginsTotal.WithLabelValues("register", "failure").Inc()
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.Register(r.Context(), assertion, auth.Profile{
		Name:  req.Name,
		Phone: req.Phone,
		Tags:  req.Tags,
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("register", "failure").Inc()
		h.respondAuthError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("register", "success").Inc()
	h.respondTokenPair(w, res)
}

// Refresh rotates the session named by the refresh cookie and returns a new
// token pair.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromCookie(r)
	if token == "" {
		metrics.RefreshesTotal.WithLabelValues("failure").Inc()
		respondError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}
	res, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("failure").Inc()
		h.clearRefreshCookie(w)
		h.respondAuthError(w, err)
		return
	}
	metrics.RefreshesTotal.WithLabelValues("success").Inc()
	h.respondTokenPair(w, res)
}

// Logout deletes the session named by the refresh cookie. An invalid token
// yields 401; the cookie is cleared either way.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromCookie(r)
	err := h.svc.Logout(r.Context(), token)
	h.clearRefreshCookie(w)
	if err != nil {
		h.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Auth) respondTokenPair(w http.ResponseWriter, res *auth.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    res.RefreshToken,
		Path:     "/auth",
		Expires:  res.SessionExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "bearer",
	})
}

func (h *Auth) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Auth) respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidAssertion), errors.Is(err, auth.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated")
	default:
		h.logger.Error("auth handler failure", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func refreshTokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
