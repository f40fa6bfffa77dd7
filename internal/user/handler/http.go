// Package handler exposes profile reads and writes for the authenticated
// user.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	auditdomain "auth-backend/internal/audit/domain"
	"auth-backend/internal/server/middleware"
	"auth-backend/internal/server/respond"
	"auth-backend/internal/user/domain"
	"auth-backend/internal/user/service"
)

type updateProfileRequest struct {
	DisplayName *string `json:"full_name"`
	AvatarURL   *string `json:"avatar_url"`
	DeviceID    string  `json:"device_id"`
}

type profileResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email,omitempty"`
	Mobile         string `json:"mobile_number,omitempty"`
	Provider       string `json:"provider"`
	DisplayName    string `json:"full_name,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	EmailVerified  bool   `json:"email_verified"`
	MobileVerified bool   `json:"mobile_verified"`
	LastLoginAt    int64  `json:"last_login_at,omitempty"`
}

type eventResponse struct {
	Action    string `json:"action"`
	IP        string `json:"ip,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// EventLister reads a user's auth event history. Satisfied by the audit
// repository; may be nil, then the events route returns an empty list.
type EventLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*auditdomain.AuthEvent, error)
}

// Server handles the /users route group. Every route requires auth.
type Server struct {
	users  *service.Service
	events EventLister
}

func NewServer(users *service.Service, events EventLister) *Server {
	return &Server{users: users, events: events}
}

func (s *Server) RegisterRoutes(g *gin.RouterGroup) {
	me := g.Group("/me", middleware.RequireAuth())
	me.GET("", s.get)
	me.PUT("", s.update)
	me.DELETE("", s.deactivate)
	me.GET("/events", s.listEvents)
}

func (s *Server) get(c *gin.Context) {
	id, _ := middleware.UserID(c.Request.Context())
	u, err := s.users.Get(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "profile", toProfileResponse(u))
}

func (s *Server) update(c *gin.Context) {
	id, _ := middleware.UserID(c.Request.Context())
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.users.UpdateProfile(c.Request.Context(), id, service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "profile updated", toProfileResponse(u))
}

func (s *Server) deactivate(c *gin.Context) {
	id, _ := middleware.UserID(c.Request.Context())
	if err := s.users.Deactivate(c.Request.Context(), id); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "account deactivated", nil)
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

func (s *Server) listEvents(c *gin.Context) {
	id, _ := middleware.UserID(c.Request.Context())

	limit := int32(defaultEventLimit)
	if v, err := strconv.ParseInt(c.DefaultQuery("limit", ""), 10, 32); err == nil && v > 0 && v <= maxEventLimit {
		limit = int32(v)
	}
	var offset int32
	if v, err := strconv.ParseInt(c.DefaultQuery("offset", ""), 10, 32); err == nil && v > 0 {
		offset = int32(v)
	}

	out := []eventResponse{}
	if s.events != nil {
		events, err := s.events.ListByUser(c.Request.Context(), id, limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		for _, e := range events {
			out = append(out, eventResponse{
				Action:    e.Action,
				IP:        e.IP,
				Metadata:  e.Metadata,
				CreatedAt: e.CreatedAt.Unix(),
			})
		}
	}
	respond.OK(c, http.StatusOK, "events", out)
}

func toProfileResponse(u *domain.User) *profileResponse {
	resp := &profileResponse{
		ID:             u.ExternalID,
		Email:          u.Email,
		Mobile:         u.Mobile,
		Provider:       string(u.Provider),
		DisplayName:    u.DisplayName,
		AvatarURL:      u.AvatarURL,
		EmailVerified:  u.EmailVerified,
		MobileVerified: u.MobileVerified,
	}
	if u.LastLoginAt != nil {
		resp.LastLoginAt = u.LastLoginAt.Unix()
	}
	return resp
}
