package handlers

import (
	"net/http"
	"strconv"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	"speakapp/internal/services"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ProblemHandler handles problem generation and history requests
type ProblemHandler struct {
	problemService services.ProblemServiceInterface
	logger         *observability.Logger
}

// NewProblemHandler creates a new ProblemHandler instance
func NewProblemHandler(problemService services.ProblemServiceInterface, logger *observability.Logger) *ProblemHandler {
	return &ProblemHandler{
		problemService: problemService,
		logger:         logger,
	}
}

// GenerateProblemRequest is the body for POST /api/problems/generate.
type GenerateProblemRequest struct {
	TaskType      models.TaskType `json:"task_type" binding:"required"`
	TopicCategory string          `json:"topic_category"`
}

// GenerateProblem handles POST /api/problems/generate. Anonymous requests
// are allowed; a logged-in user's history steers generation away from
// questions they have already seen.
func (h *ProblemHandler) GenerateProblem(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "generate_problem")
	defer observability.FinishSpan(span, nil)

	var req GenerateProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn(ctx, "Invalid generate request format", map[string]interface{}{
			"error": err.Error(),
		})
		HandleValidationError(c, "generate request", nil, "task_type is required")
		return
	}

	userID := contextutils.GetUserIDFromContext(ctx)
	span.SetAttributes(attribute.String("task.type", string(req.TaskType)))

	problem, err := h.problemService.GenerateProblem(ctx, userID, req.TaskType, req.TopicCategory)
	if err != nil {
		h.logger.Error(ctx, "Problem generation failed", err, map[string]interface{}{
			"task_type": string(req.TaskType),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, problem)
}

// GetProblem handles GET /api/problems/:id.
func (h *ProblemHandler) GetProblem(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_problem")
	defer observability.FinishSpan(span, nil)

	problemID := c.Param("id")
	if !requireValidID(c, "problem id", problemID) {
		return
	}

	session, err := h.problemService.GetSession(ctx, problemID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// History handles GET /api/history. Sessions belong to the authenticated
// user; limit and offset are optional query parameters.
func (h *ProblemHandler) History(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "history")
	defer observability.FinishSpan(span, nil)

	userID := contextutils.GetUserIDFromContext(ctx)
	if userID == "" {
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeAuthError,
			contextutils.SeverityWarn,
			"Authentication required",
			"history requires a session",
		))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	span.SetAttributes(observability.AttributeLimit(limit), observability.AttributeOffset(offset))

	sessions, err := h.problemService.ListSessions(ctx, userID, limit, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// HistoryDetail handles GET /api/history/:id. The session must belong to
// the authenticated user; anything else is reported as not found so session
// IDs cannot be probed across accounts.
func (h *ProblemHandler) HistoryDetail(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "history_detail")
	defer observability.FinishSpan(span, nil)

	userID := contextutils.GetUserIDFromContext(ctx)
	if userID == "" {
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeAuthError,
			contextutils.SeverityWarn,
			"Authentication required",
			"history requires a session",
		))
		return
	}

	sessionID := c.Param("id")
	if !requireValidID(c, "session id", sessionID) {
		return
	}

	session, err := h.problemService.GetSession(ctx, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if !session.UserID.Valid || session.UserID.String != userID {
		h.logger.Warn(ctx, "History detail requested for another user's session", map[string]interface{}{
			"session_id": sessionID,
		})
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Practice session not found",
			sessionID,
		))
		return
	}

	c.JSON(http.StatusOK, session)
}
