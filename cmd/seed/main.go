// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the admin user already exists.
package main

import (
	"context"
	"log"

	"trailblazer-user-service/internal/config"
	"trailblazer-user-service/internal/db"
	"trailblazer-user-service/internal/user/domain"
	userrepo "trailblazer-user-service/internal/user/repository"
)

const (
	adminUserID = "dev-admin-001"
	adminEmail  = "admin@example.com"
	devUserID   = "dev-user-001"
	devEmail    = "dev@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)

	existing, err := users.GetByID(ctx, adminUserID)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Println("seed: already applied, skipping")
		return
	}

	for _, u := range []*domain.User{
		{
			ID:       adminUserID,
			Email:    adminEmail,
			Name:     "Dev Admin",
			Scopes:   []string{domain.ScopeAdmin},
			Verified: true,
		},
		{
			ID:     devUserID,
			Email:  devEmail,
			Name:   "Dev User",
			Scopes: []string{domain.ScopeUser},
			Tags:   []string{"dev"},
		},
	} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed %s: %v", u.Email, err)
		}
		log.Printf("seed: created %s (%s)", u.Email, u.ID)
	}
}
