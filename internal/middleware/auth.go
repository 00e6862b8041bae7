// Package middleware provides the request gate for the Gin web framework:
// authentication, rate limiting, transport security, and error recovery.
package middleware

import (
	"context"
	"strings"

	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// SessionValidator resolves a bearer token to a user ID
type SessionValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (string, error)
}

func unauthorized(c *gin.Context, details string) {
	StandardizeAppError(c, contextutils.NewAppError(
		contextutils.ErrorCodeAuthError,
		contextutils.SeverityWarn,
		"Authentication required",
		details,
	))
	c.Abort()
}

// RequireSession returns middleware that requires a valid bearer session
// token. On success the user ID and raw token are placed on the request
// context for handlers and downstream services.
func RequireSession(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			unauthorized(c, "empty bearer token")
			return
		}

		userID, err := validator.ValidateSessionToken(c.Request.Context(), token)
		if err != nil {
			HandleAppError(c, err)
			c.Abort()
			return
		}

		ctx := contextutils.WithUserID(c.Request.Context(), userID)
		ctx = contextutils.WithSessionToken(ctx, token)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// OptionalSession resolves a bearer token when one is present but lets
// anonymous requests through. Invalid tokens are treated as anonymous
// rather than rejected.
func OptionalSession(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token != "" {
				if userID, err := validator.ValidateSessionToken(c.Request.Context(), token); err == nil {
					ctx := contextutils.WithUserID(c.Request.Context(), userID)
					ctx = contextutils.WithSessionToken(ctx, token)
					c.Request = c.Request.WithContext(ctx)
				}
			}
		}
		c.Next()
	}
}
