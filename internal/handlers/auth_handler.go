package handlers

import (
	"net/http"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	"speakapp/internal/services"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles login and session verification requests
type AuthHandler struct {
	authService services.AuthServiceInterface
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService services.AuthServiceInterface, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Login handles POST /api/auth/simple-login. A user row is created on first login
// with the supplied identifier; the response carries the one-time raw token.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "auth_login")
	defer observability.FinishSpan(span, nil)

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn(ctx, "Invalid login request format", map[string]interface{}{
			"error": err.Error(),
		})
		HandleValidationError(c, "login request", nil, "user_identifier is required")
		return
	}

	resp, err := h.authService.Login(ctx, req.UserIdentifier)
	if err != nil {
		h.logger.Warn(ctx, "Login failed", map[string]interface{}{
			"error": err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Verify handles GET /api/auth/verify. The session middleware has already
// validated the bearer token; this resolves it to the full user record.
func (h *AuthHandler) Verify(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "auth_verify")
	defer observability.FinishSpan(span, nil)

	token := contextutils.GetSessionTokenFromContext(ctx)
	if token == "" {
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeAuthError,
			contextutils.SeverityWarn,
			"Authentication required",
			"missing bearer token",
		))
		return
	}

	user, err := h.authService.VerifySession(ctx, token)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"user":  user,
	})
}
