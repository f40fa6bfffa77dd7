// Package respond defines the wire envelope and the error-to-status mapping
// shared by every HTTP handler.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	authservice "auth-backend/internal/auth/service"
	"auth-backend/internal/ratelimit"
	userrepo "auth-backend/internal/user/repository"
	userservice "auth-backend/internal/user/service"
)

// Envelope is the uniform response body. Data is omitted when empty.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a success envelope with the given status.
func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope with the given status.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Message: message})
}

// Error maps a service error to a failure envelope. Unknown errors become an
// opaque 500; their details reach logs, never clients.
func Error(c *gin.Context, err error) {
	var verr *authservice.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, Envelope{Success: false, Message: "validation failed", Data: verr.Fields})
	case errors.Is(err, userrepo.ErrDuplicateContact):
		Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, authservice.ErrInvalidCredentials):
		Fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authservice.ErrInvalidToken):
		Fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, userservice.ErrUserNotFound):
		Fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ratelimit.ErrRateLimited):
		Fail(c, http.StatusTooManyRequests, err.Error())
	default:
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, "internal server error")
	}
}
