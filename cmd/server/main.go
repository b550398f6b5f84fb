package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trailblazer-user-service/internal/audit"
	auditrepo "trailblazer-user-service/internal/audit/repository"
	"trailblazer-user-service/internal/auth"
	"trailblazer-user-service/internal/authz"
	"trailblazer-user-service/internal/authz/engine"
	"trailblazer-user-service/internal/config"
	"trailblazer-user-service/internal/db"
	"trailblazer-user-service/internal/identity"
	"trailblazer-user-service/internal/security"
	"trailblazer-user-service/internal/server"
	"trailblazer-user-service/internal/server/handlers"
	"trailblazer-user-service/internal/server/middleware"
	sessionrepo "trailblazer-user-service/internal/session/repository"
	teleotel "trailblazer-user-service/internal/telemetry/otel"
	"trailblazer-user-service/internal/user/domain"
	userrepo "trailblazer-user-service/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	providers, err := teleotel.NewProviders(ctx, cfg.OTLPEndpoint, "user-service", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		logger.Fatal("private key", zap.Error(err))
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal("public key", zap.Error(err))
	}
	codec := security.NewCodec(privateKey, publicKey)

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	evaluator, err := engine.NewOPAEvaluator(domain.ScopeAdmin)
	if err != nil {
		logger.Fatal("policy engine", zap.Error(err))
	}
	gate := authz.NewGate(codec, evaluator)

	users := userrepo.NewPostgresRepository(pool)
	sessions := sessionrepo.NewPostgresRepository(pool)
	auditLogger := audit.NewLogger(
		auditrepo.NewPostgresRepository(pool),
		middleware.GetClientIP,
		logger,
	)
	verifier := identity.NewGoogleVerifier(cfg.FirebaseProjectID, cfg.FirebaseCertsURL, nil)
	manager := auth.NewManager(users, sessions, verifier, codec, cfg.AccessTTL(), auditLogger, logger)

	router := server.NewRouter(server.Deps{
		Auth:  handlers.NewAuth(manager, cfg.Production(), logger),
		Users: handlers.NewUsers(users, logger),
		Gate:  gate,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return evaluator.HealthCheck(ctx)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
}
