// Package handler exposes liveness and readiness checks.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"auth-backend/internal/server/respond"
)

const pingTimeout = 2 * time.Second

// Pinger reports backing-store reachability. Satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server handles health checks. A nil pinger skips the database probe.
type Server struct {
	db Pinger
}

func NewServer(db Pinger) *Server {
	return &Server{db: db}
}

func (s *Server) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", s.check)
}

func (s *Server) check(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, respond.Envelope{Success: false, Message: "unhealthy", Data: status})
			return
		}
		status["database"] = "ok"
	}
	respond.OK(c, http.StatusOK, "healthy", status)
}
