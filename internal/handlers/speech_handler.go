package handlers

import (
	"io"
	"net/http"
	"time"

	"speakapp/internal/observability"
	"speakapp/internal/services"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// SpeechHandler handles audio transcription requests
type SpeechHandler struct {
	speechService services.SpeechServiceInterface
	logger        *observability.Logger
}

// NewSpeechHandler creates a new SpeechHandler instance
func NewSpeechHandler(speechService services.SpeechServiceInterface, logger *observability.Logger) *SpeechHandler {
	return &SpeechHandler{
		speechService: speechService,
		logger:        logger,
	}
}

// Transcribe handles POST /api/speech/transcribe. The recording arrives as
// multipart form data under "audio_file" together with the problem ID the
// recording answers.
func (h *SpeechHandler) Transcribe(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "transcribe")
	defer observability.FinishSpan(span, nil)

	start := time.Now()

	fileHeader, err := c.FormFile("audio_file")
	if err != nil {
		HandleValidationError(c, "audio_file", nil, "a multipart audio_file field is required")
		return
	}

	problemID := c.PostForm("problem_id")
	if problemID == "" {
		HandleValidationError(c, "problem_id", nil, "problem_id form field is required")
		return
	}
	if !requireValidID(c, "problem_id", problemID) {
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to open uploaded file"))
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to read uploaded file"))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	language := c.DefaultPostForm("language", "en")

	h.logger.Info(ctx, "Received transcription request", map[string]interface{}{
		"problem_id":   problemID,
		"filename":     fileHeader.Filename,
		"content_type": contentType,
		"bytes":        len(audio),
	})

	result, err := h.speechService.TranscribeAudio(ctx, audio, fileHeader.Filename, contentType, language)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transcript":      result.Transcript,
		"processing_time": time.Since(start).Seconds(),
	})
}
