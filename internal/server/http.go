// Package server wires the HTTP surface: auth endpoints, user endpoints,
// health probes, and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trailblazer-user-service/internal/authz"
	"trailblazer-user-service/internal/server/handlers"
	"trailblazer-user-service/internal/server/middleware"
	"trailblazer-user-service/internal/user/domain"
)

// Deps carries the collaborators the router needs.
type Deps struct {
	Auth  *handlers.Auth
	Users *handlers.Users
	Gate  *authz.Gate
	// Ready reports whether downstream dependencies (database, policy
	// engine) are reachable. Used by /readyz.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi router containing all endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.ClientIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(req.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", d.Auth.Login)
		r.Post("/register", d.Auth.Register)
		r.Post("/refresh", d.Auth.Refresh)
		r.Post("/logout", d.Auth.Logout)
	})

	r.Route("/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScopes(d.Gate))
			r.Get("/me", d.Users.Me)
			r.Put("/me", d.Users.UpdateMe)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScopes(d.Gate, domain.ScopeAdmin))
			r.Get("/", d.Users.List)
			r.Get("/{id}", d.Users.Get)
			r.Put("/{id}", d.Users.Update)
			r.Delete("/{id}", d.Users.Delete)
		})
	})

	return otelhttp.NewHandler(r, "http.server")
}
