package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"auth-backend/internal/security"
	"auth-backend/internal/server/respond"
	userdomain "auth-backend/internal/user/domain"
)

const bearerPrefix = "bearer "

// AccessValidator checks an access token and returns its claims and owner.
// Satisfied by the auth service.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*security.AccessClaims, *userdomain.User, error)
}

// Authenticate validates the Bearer token when one is present and puts the
// user's external identifier into the request context. Requests without a
// valid token pass through unauthenticated; RequireAuth decides whether that
// is acceptable for the route.
func Authenticate(tokens AccessValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		claims, _, err := tokens.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}
		ctx := WithUserID(c.Request.Context(), claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth rejects requests that Authenticate left unauthenticated.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c.Request.Context()); !ok {
			respond.Fail(c, http.StatusUnauthorized, "missing or invalid authorization")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ExtractBearer returns the Bearer token from an Authorization header value,
// or "" if missing or malformed.
func ExtractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
