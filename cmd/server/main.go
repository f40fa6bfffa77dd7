package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"auth-backend/internal/audit"
	auditrepo "auth-backend/internal/audit/repository"
	authservice "auth-backend/internal/auth/service"
	"auth-backend/internal/config"
	"auth-backend/internal/db"
	"auth-backend/internal/identity"
	"auth-backend/internal/ratelimit"
	"auth-backend/internal/security"
	"auth-backend/internal/server"
	"auth-backend/internal/server/middleware"
	sessionrepo "auth-backend/internal/session/repository"
	userrepo "auth-backend/internal/user/repository"
	userservice "auth-backend/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Env)
	slog.SetDefault(log)

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("db", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	auditStore := auditrepo.NewPostgresRepository(conn)
	events := audit.NewLogger(auditStore, middleware.ClientIP, log)

	var verifier identity.Verifier
	if cfg.IdentityVerifierURL != "" {
		verifier = identity.NewHTTPVerifier(cfg.IdentityVerifierURL, cfg.IdentityVerifierAPIKey)
	}

	tokens := authservice.NewTokenService(authservice.Deps{
		Users:    users,
		Sessions: sessions,
		Codec:    security.NewTokenCodec([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL()),
		Hasher:   security.NewHasher(cfg.BcryptCost),
		Verifier: verifier,
		Limiter:  ratelimit.NewTokenBucket(cfg.RateLimitAttempts, cfg.RateWindow()),
		Events:   events,
		ClientIP: middleware.ClientIP,
		Rotate:   cfg.RefreshRotate,
		Log:      log,
	})
	profiles := userservice.NewService(users, sessions, events, log)

	router := server.NewRouter(server.Deps{
		Tokens: tokens,
		Users:  profiles,
		Events: auditStore,
		Health: conn,
		Log:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg.HTTPAddr, router, log); err != nil {
		log.Error("server", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger: JSON in production, text elsewhere.
func newLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
