// Package handler exposes the token lifecycle over HTTP. Handlers bind the
// wire format and translate errors; all decisions live in the service.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auth-backend/internal/auth/service"
	"auth-backend/internal/server/middleware"
	"auth-backend/internal/server/respond"
	userdomain "auth-backend/internal/user/domain"
)

type registerRequest struct {
	Email       string `json:"email"`
	Mobile      string `json:"mobile_number"`
	Password    string `json:"password"`
	DisplayName string `json:"full_name"`
	AvatarURL   string `json:"avatar_url"`
	Provider    string `json:"provider"`
	DeviceID    string `json:"device_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Mobile   string `json:"mobile_number"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type externalLoginRequest struct {
	Provider  string `json:"provider"`
	Assertion string `json:"assertion"`
	DeviceID  string `json:"device_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email,omitempty"`
	Mobile         string `json:"mobile_number,omitempty"`
	Provider       string `json:"provider"`
	DisplayName    string `json:"full_name,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	EmailVerified  bool   `json:"email_verified"`
	MobileVerified bool   `json:"mobile_verified"`
}

type tokenResponse struct {
	*service.TokenPair
	User *userResponse `json:"user,omitempty"`
}

// Server handles the /auth route group.
type Server struct {
	tokens *service.TokenService
}

func NewServer(tokens *service.TokenService) *Server {
	return &Server{tokens: tokens}
}

// RegisterRoutes mounts the auth endpoints on the given group. Logout needs
// the caller authenticated; everything else authenticates by payload.
func (s *Server) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/register", s.register)
	g.POST("/login", s.login)
	g.POST("/external", s.externalLogin)
	g.POST("/refresh", s.refresh)
	g.GET("/validate", s.validate)
	g.POST("/validate", s.validate)
	g.POST("/logout", middleware.RequireAuth(), s.logout)
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	// Delegated accounts are created through /external on first login; register
	// only mints password accounts.
	if req.Provider != "" && req.Provider != string(userdomain.ProviderPassword) {
		respond.Fail(c, http.StatusBadRequest, "delegated accounts are created via /auth/external")
		return
	}
	u, err := s.tokens.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Mobile:      req.Mobile,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, "registered", toUserResponse(u))
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, u, err := s.tokens.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "logged in", tokenResponse{TokenPair: pair, User: toUserResponse(u)})
}

func (s *Server) externalLogin(c *gin.Context) {
	var req externalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, u, err := s.tokens.ExternalLogin(c.Request.Context(), service.ExternalLoginInput{
		Provider:  req.Provider,
		Assertion: req.Assertion,
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "logged in", tokenResponse{TokenPair: pair, User: toUserResponse(u)})
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		respond.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, err := s.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "token refreshed", tokenResponse{TokenPair: pair})
}

// validate reports whether the presented access token is good, for downstream
// services and gateways. Token comes from the Authorization header, same as on
// protected routes.
func (s *Server) validate(c *gin.Context) {
	token := middleware.ExtractBearer(c.GetHeader("Authorization"))
	if token == "" {
		respond.Fail(c, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	claims, u, err := s.tokens.ValidateAccess(c.Request.Context(), token)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "token valid", gin.H{
		"is_valid":   true,
		"subject_id": claims.Subject,
		"email":      u.Email,
		"mobile":     u.Mobile,
		"issued_at":  claims.IssuedAt.Unix(),
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

func (s *Server) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		respond.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.tokens.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "logged out", nil)
}

func toUserResponse(u *userdomain.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:             u.ExternalID,
		Email:          u.Email,
		Mobile:         u.Mobile,
		Provider:       string(u.Provider),
		DisplayName:    u.DisplayName,
		AvatarURL:      u.AvatarURL,
		EmailVerified:  u.EmailVerified,
		MobileVerified: u.MobileVerified,
	}
}
