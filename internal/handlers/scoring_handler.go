package handlers

import (
	"net/http"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	"speakapp/internal/services"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ScoringHandler handles response evaluation and model answer requests
type ScoringHandler struct {
	scoringService services.ScoringServiceInterface
	logger         *observability.Logger
}

// NewScoringHandler creates a new ScoringHandler instance
func NewScoringHandler(scoringService services.ScoringServiceInterface, logger *observability.Logger) *ScoringHandler {
	return &ScoringHandler{
		scoringService: scoringService,
		logger:         logger,
	}
}

// EvaluateRequest is the body for POST /api/scoring/evaluate.
type EvaluateRequest struct {
	ProblemID  string `json:"problem_id" binding:"required"`
	Transcript string `json:"transcript" binding:"required"`
}

// ModelAnswerRequest is the body for POST /api/scoring/model-answer/generate.
type ModelAnswerRequest struct {
	ProblemID string `json:"problem_id" binding:"required"`
}

// AIReviewRequest is the body for POST /api/scoring/ai-review.
type AIReviewRequest struct {
	ProblemID  string `json:"problem_id" binding:"required"`
	Transcript string `json:"transcript" binding:"required"`
}

// SaveAIReviewRequest is the body for POST /api/scoring/ai-review/save.
type SaveAIReviewRequest struct {
	ProblemID string           `json:"problem_id" binding:"required"`
	Review    *models.AIReview `json:"review" binding:"required"`
}

// Evaluate handles POST /api/scoring/evaluate.
func (h *ScoringHandler) Evaluate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "evaluate")
	defer observability.FinishSpan(span, nil)

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn(ctx, "Invalid evaluate request format", map[string]interface{}{
			"error": err.Error(),
		})
		HandleValidationError(c, "evaluate request", nil, "problem_id and transcript are required")
		return
	}
	if !requireValidID(c, "problem_id", req.ProblemID) {
		return
	}

	span.SetAttributes(observability.AttributeProblemID(req.ProblemID))

	result, err := h.scoringService.EvaluateResponse(ctx, req.ProblemID, req.Transcript)
	if err != nil {
		h.logger.Error(ctx, "Evaluation failed", err, map[string]interface{}{
			"problem_id": req.ProblemID,
		})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("scoring.overall", result.OverallScore))
	c.JSON(http.StatusOK, result)
}

// ModelAnswer handles POST /api/scoring/model-answer/generate.
func (h *ScoringHandler) ModelAnswer(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "model_answer")
	defer observability.FinishSpan(span, nil)

	var req ModelAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "model answer request", nil, "problem_id is required")
		return
	}
	if !requireValidID(c, "problem_id", req.ProblemID) {
		return
	}

	span.SetAttributes(observability.AttributeProblemID(req.ProblemID))

	answer, err := h.scoringService.GenerateModelAnswer(ctx, req.ProblemID)
	if err != nil {
		h.logger.Error(ctx, "Model answer generation failed", err, map[string]interface{}{
			"problem_id": req.ProblemID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// AIReview handles POST /api/scoring/ai-review. The review is generated but
// not persisted; the client saves it explicitly via the save endpoint.
func (h *ScoringHandler) AIReview(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "ai_review")
	defer observability.FinishSpan(span, nil)

	var req AIReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "ai review request", nil, "problem_id and transcript are required")
		return
	}
	if !requireValidID(c, "problem_id", req.ProblemID) {
		return
	}

	span.SetAttributes(observability.AttributeProblemID(req.ProblemID))

	review, err := h.scoringService.GenerateAIReview(ctx, req.ProblemID, req.Transcript)
	if err != nil {
		h.logger.Error(ctx, "AI review generation failed", err, map[string]interface{}{
			"problem_id": req.ProblemID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

// SaveAIReview handles POST /api/scoring/ai-review/save.
func (h *ScoringHandler) SaveAIReview(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "save_ai_review")
	defer observability.FinishSpan(span, nil)

	var req SaveAIReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Review == nil {
		HandleValidationError(c, "save ai review request", nil, "problem_id and review are required")
		return
	}
	if !requireValidID(c, "problem_id", req.ProblemID) {
		return
	}

	span.SetAttributes(observability.AttributeProblemID(req.ProblemID))

	if err := h.scoringService.SaveAIReview(ctx, req.ProblemID, req.Review); err != nil {
		h.logger.Error(ctx, "Failed to save AI review", err, map[string]interface{}{
			"problem_id": req.ProblemID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "AI review saved successfully"})
}
