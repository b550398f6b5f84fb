package middleware

import (
	"context"
	"net"
	"net/http"

	"trailblazer-user-service/internal/authz"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientIPKey = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id *authz.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the authenticated caller from ctx and true if set.
func GetIdentity(ctx context.Context) (*authz.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*authz.Identity)
	return id, ok
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the client IP from ctx, or "unknown" if unset.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

// ClientIP records the request's remote IP in the context. Expects
// chi's RealIP middleware to have rewritten RemoteAddr already when the
// service runs behind a proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	})
}
