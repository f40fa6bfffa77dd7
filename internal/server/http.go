// Package server wires the HTTP router and runs the server with graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authhandler "auth-backend/internal/auth/handler"
	authservice "auth-backend/internal/auth/service"
	healthhandler "auth-backend/internal/health/handler"
	"auth-backend/internal/server/middleware"
	userhandler "auth-backend/internal/user/handler"
	userservice "auth-backend/internal/user/service"
)

const shutdownTimeout = 10 * time.Second

// Deps holds the services the router exposes.
type Deps struct {
	Tokens *authservice.TokenService
	Users  *userservice.Service
	// Events backs the auth event history route. May be nil.
	Events userhandler.EventLister
	// Health probes database reachability. May be nil.
	Health healthhandler.Pinger
	Log    *slog.Logger
}

// NewRouter builds the gin engine with all routes mounted under /api/v1.
//
// Route → handler mapping:
//   - /api/v1/auth/*  → internal/auth/handler
//   - /api/v1/users/* → internal/user/handler
//   - /api/v1/auth/health → internal/health/handler
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Authenticate(deps.Tokens))

	api := r.Group("/api/v1")
	auth := api.Group("/auth")
	authhandler.NewServer(deps.Tokens).RegisterRoutes(auth)
	healthhandler.NewServer(deps.Health).RegisterRoutes(auth)
	userhandler.NewServer(deps.Users, deps.Events).RegisterRoutes(api.Group("/users"))

	return r
}

// Run serves the router on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func Run(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
