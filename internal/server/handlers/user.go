package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trailblazer-user-service/internal/server/middleware"
	"trailblazer-user-service/internal/user/domain"
	userrepo "trailblazer-user-service/internal/user/repository"
)

// Users serves the user read and admin endpoints. Scope requirements are
// enforced by the router middleware, not here.
type Users struct {
	repo   userrepo.Repository
	logger *zap.Logger
}

// NewUsers returns user handlers backed by repo.
func NewUsers(repo userrepo.Repository, logger *zap.Logger) *Users {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Users{repo: repo, logger: logger}
}

type userResponse struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Scopes   []string `json:"scopes"`
	Tags     []string `json:"tags,omitempty"`
	Verified bool     `json:"verified"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Phone:    u.Phone,
		Scopes:   u.Scopes,
		Tags:     u.Tags,
		Verified: u.Verified,
	}
}

// Me returns the caller's own user record.
func (h *Users) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	u, err := h.repo.GetByID(r.Context(), id.Subject)
	if err != nil {
		h.logger.Error("get user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

type updateMeRequest struct {
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Tags  []string `json:"tags"`
}

// UpdateMe updates the caller's profile fields. Scopes and verification are
// not client-writable.
func (h *Users) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.repo.GetByID(r.Context(), id.Subject)
	if err != nil {
		h.logger.Error("get user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	u.Name = req.Name
	u.Phone = req.Phone
	u.Tags = req.Tags
	if err := h.repo.Update(r.Context(), u); err != nil {
		h.logger.Error("update user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

// Get returns the user with the given id. Admin only.
func (h *Users) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("get user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

// List returns users paginated by limit and offset. Admin only.
func (h *Users) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt32(r, "limit", 50)
	offset := queryInt32(r, "offset", 0)
	users, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": out})
}

type updateUserRequest struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Scopes   []string `json:"scopes"`
	Tags     []string `json:"tags"`
	Verified bool     `json:"verified"`
}

// Update replaces the user with the given id. Admin only.
func (h *Users) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u := &domain.User{
		ID:       chi.URLParam(r, "id"),
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Scopes:   req.Scopes,
		Tags:     req.Tags,
		Verified: req.Verified,
	}
	if err := u.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.repo.Update(r.Context(), u); err != nil {
		h.logger.Error("update user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

// Delete removes the user and, via the schema, all their device logins.
// Admin only.
func (h *Users) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.logger.Error("delete user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func queryInt32(r *http.Request, name string, def int32) int32 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}
