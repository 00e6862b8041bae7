package handlers

import (
	"fmt"

	"speakapp/internal/middleware"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// HandleAppError sends the structured error envelope for any error. Status
// mapping lives in the middleware package so handlers and the recovery
// middleware stay consistent.
func HandleAppError(c *gin.Context, err error) {
	middleware.HandleAppError(c, err)
}

// HandleValidationError handles input validation errors consistently
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("value '%v' is invalid: %s", value, reason),
	)
	middleware.StandardizeAppError(c, appErr)
}

// requireValidID rejects malformed identifiers before they reach the service
// layer. IDs are validated but never reformatted: lookups use exactly the
// string the caller sent.
func requireValidID(c *gin.Context, field, id string) bool {
	if !contextutils.IsValidUUID(id) {
		HandleValidationError(c, field, id, "must be a UUID")
		return false
	}
	return true
}
