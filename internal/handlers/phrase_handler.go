package handlers

import (
	"net/http"

	"speakapp/internal/observability"
	"speakapp/internal/services"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// PhraseHandler handles saved phrase requests
type PhraseHandler struct {
	phraseService services.PhraseServiceInterface
	logger        *observability.Logger
}

// NewPhraseHandler creates a new PhraseHandler instance
func NewPhraseHandler(phraseService services.PhraseServiceInterface, logger *observability.Logger) *PhraseHandler {
	return &PhraseHandler{
		phraseService: phraseService,
		logger:        logger,
	}
}

// SavePhraseRequest is the body for POST /api/phrases.
type SavePhraseRequest struct {
	Phrase   string `json:"phrase" binding:"required"`
	Context  string `json:"context"`
	Category string `json:"category"`
}

// UpdatePhraseRequest is the body for PATCH /api/phrases/:id.
type UpdatePhraseRequest struct {
	IsMastered *bool `json:"is_mastered" binding:"required"`
}

func requireUserID(c *gin.Context) (string, bool) {
	userID := contextutils.GetUserIDFromContext(c.Request.Context())
	if userID == "" {
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeAuthError,
			contextutils.SeverityWarn,
			"Authentication required",
			"",
		))
		return "", false
	}
	return userID, true
}

// Save handles POST /api/phrases.
func (h *PhraseHandler) Save(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "save_phrase")
	defer observability.FinishSpan(span, nil)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SavePhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "phrase request", nil, "phrase is required")
		return
	}

	saved, err := h.phraseService.SavePhrase(ctx, userID, req.Phrase, req.Context, req.Category)
	if err != nil {
		h.logger.Error(ctx, "Failed to save phrase", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

// List handles GET /api/phrases.
func (h *PhraseHandler) List(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_phrases")
	defer observability.FinishSpan(span, nil)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	phrases, err := h.phraseService.ListPhrases(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phrases": phrases,
		"total":   len(phrases),
	})
}

// Update handles PATCH /api/phrases/:id.
func (h *PhraseHandler) Update(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_phrase")
	defer observability.FinishSpan(span, nil)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdatePhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsMastered == nil {
		HandleValidationError(c, "phrase update", nil, "is_mastered is required")
		return
	}

	phrase, err := h.phraseService.UpdateMastered(ctx, userID, c.Param("id"), *req.IsMastered)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, phrase)
}

// Delete handles DELETE /api/phrases/:id.
func (h *PhraseHandler) Delete(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_phrase")
	defer observability.FinishSpan(span, nil)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.phraseService.DeletePhrase(ctx, userID, c.Param("id")); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "phrase deleted"})
}
