package services

import (
	"context"
	"fmt"
	"strings"

	"speakapp/internal/config"
	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// SpeechServiceInterface defines the transcription operations handlers depend on
type SpeechServiceInterface interface {
	TranscribeAudio(ctx context.Context, audio []byte, filename, contentType, language string) (*models.TranscriptionResult, error)
}

// allowedAudioTypes are the upload content types accepted for transcription.
// Codec suffixes (";codecs=opus" and friends) are stripped before matching.
var allowedAudioTypes = map[string]struct{}{
	"audio/wav":   {},
	"audio/wave":  {},
	"audio/x-wav": {},
	"audio/mpeg":  {},
	"audio/mp3":   {},
	"audio/ogg":   {},
	"audio/flac":  {},
	"audio/m4a":   {},
	"audio/mp4":   {},
	"audio/webm":  {},
}

// SpeechService validates uploaded recordings and hands them to the
// transcription API.
type SpeechService struct {
	client         GenerativeClient
	maxUploadBytes int64
	logger         *observability.Logger
}

// NewSpeechService creates a new SpeechService instance
func NewSpeechService(client GenerativeClient, cfg config.AudioConfig, logger *observability.Logger) *SpeechService {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxUploadBytes
	}
	return &SpeechService{
		client:         client,
		maxUploadBytes: maxBytes,
		logger:         logger,
	}
}

// TranscribeAudio validates the upload and transcribes it. The content type
// must be a recognized audio format and the payload must fit under the
// configured upload ceiling.
func (s *SpeechService) TranscribeAudio(ctx context.Context, audio []byte, filename, contentType, language string) (result0 *models.TranscriptionResult, err error) {
	ctx, span := observability.TraceSpeechFunction(ctx, "transcribe_audio",
		attribute.String("audio.content_type", contentType),
		attribute.Int("audio.bytes", len(audio)),
	)
	defer observability.FinishSpan(span, &err)

	if contentType == "" {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Audio content type is required",
			"",
		)
	}

	baseType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if _, ok := allowedAudioTypes[strings.ToLower(baseType)]; !ok {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Unsupported audio format",
			fmt.Sprintf("content_type: %s", contentType),
		)
	}

	if len(audio) == 0 {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Audio file is empty",
			"",
		)
	}

	if int64(len(audio)) > s.maxUploadBytes {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Audio file is too large",
			fmt.Sprintf("size: %d bytes, limit: %d bytes", len(audio), s.maxUploadBytes),
		)
	}

	transcript, err := s.client.Transcribe(ctx, audio, filename, language)
	if err != nil {
		return nil, err
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeSpeechProcessing,
			contextutils.SeverityWarn,
			"Transcription returned no text",
			"the recording may be silent or unclear",
		)
	}

	s.logger.Info(ctx, "Transcription completed", map[string]interface{}{
		"filename":   filename,
		"characters": len(transcript),
	})

	return &models.TranscriptionResult{Transcript: transcript}, nil
}
