package middleware

import (
	"errors"
	"net/http"
	"strings"

	"trailblazer-user-service/internal/authz"
)

const bearerPrefix = "bearer "

// RequireScopes returns middleware that validates the Authorization bearer
// token against gate and stores the caller's identity in the context.
// Requests failing authentication get 401; valid callers missing a required
// scope get 403.
func RequireScopes(gate *authz.Gate, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := gate.Authorize(r.Context(), ExtractBearer(r), required...)
			if err != nil {
				switch {
				case errors.Is(err, authz.ErrForbidden):
					http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				case errors.Is(err, authz.ErrUnauthenticated):
					http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				default:
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// ExtractBearer returns the bearer token from the Authorization header, or
// "" if missing or malformed.
func ExtractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
