package services

import (
	"context"
	"testing"

	"speakapp/internal/config"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transcribeStub records the transcription call and returns a canned result.
type transcribeStub struct {
	stubGenerativeClient
	transcript   string
	err          error
	lastFilename string
	lastLanguage string
	calls        int
}

func (c *transcribeStub) Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error) {
	c.calls++
	c.lastFilename = filename
	c.lastLanguage = language
	return c.transcript, c.err
}

func newTestSpeechService(client GenerativeClient, maxBytes int64) *SpeechService {
	return NewSpeechService(client, config.AudioConfig{MaxUploadBytes: maxBytes}, observability.NewLogger(nil))
}

func assertInvalidInput(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, appErr.Code)
}

func TestTranscribeAudio(t *testing.T) {
	t.Run("trims and returns the transcript", func(t *testing.T) {
		stub := &transcribeStub{transcript: "  hello world  "}
		svc := newTestSpeechService(stub, 0)

		result, err := svc.TranscribeAudio(context.Background(), []byte("bytes"), "rec.webm", "audio/webm;codecs=opus", "en")
		require.NoError(t, err)
		assert.Equal(t, "hello world", result.Transcript)
		assert.Equal(t, "rec.webm", stub.lastFilename)
		assert.Equal(t, "en", stub.lastLanguage)
	})

	t.Run("missing content type is rejected before any upstream call", func(t *testing.T) {
		stub := &transcribeStub{transcript: "text"}
		svc := newTestSpeechService(stub, 0)

		_, err := svc.TranscribeAudio(context.Background(), []byte("bytes"), "rec.webm", "", "en")
		assertInvalidInput(t, err)
		assert.Zero(t, stub.calls)
	})

	t.Run("unsupported format is rejected", func(t *testing.T) {
		stub := &transcribeStub{transcript: "text"}
		svc := newTestSpeechService(stub, 0)

		_, err := svc.TranscribeAudio(context.Background(), []byte("bytes"), "doc.pdf", "application/pdf", "en")
		assertInvalidInput(t, err)
		assert.Zero(t, stub.calls)
	})

	t.Run("empty payload is rejected", func(t *testing.T) {
		stub := &transcribeStub{transcript: "text"}
		svc := newTestSpeechService(stub, 0)

		_, err := svc.TranscribeAudio(context.Background(), nil, "rec.wav", "audio/wav", "en")
		assertInvalidInput(t, err)
		assert.Zero(t, stub.calls)
	})

	t.Run("oversized payload is rejected", func(t *testing.T) {
		stub := &transcribeStub{transcript: "text"}
		svc := newTestSpeechService(stub, 4)

		_, err := svc.TranscribeAudio(context.Background(), []byte("12345"), "rec.wav", "audio/wav", "en")
		assertInvalidInput(t, err)
		assert.Zero(t, stub.calls)
	})

	t.Run("empty transcription result is a speech processing failure", func(t *testing.T) {
		stub := &transcribeStub{transcript: "   "}
		svc := newTestSpeechService(stub, 0)

		_, err := svc.TranscribeAudio(context.Background(), []byte("bytes"), "rec.wav", "audio/wav", "en")
		require.Error(t, err)

		var appErr *contextutils.AppError
		require.True(t, contextutils.AsError(err, &appErr))
		assert.Equal(t, contextutils.ErrorCodeSpeechProcessing, appErr.Code)
	})

	t.Run("upstream errors propagate unchanged", func(t *testing.T) {
		upstream := contextutils.NewAppError(
			contextutils.ErrorCodeExternalAPI,
			contextutils.SeverityError,
			"transcription service failed after 2 attempts",
			"service: transcription",
		)
		stub := &transcribeStub{err: upstream}
		svc := newTestSpeechService(stub, 0)

		_, err := svc.TranscribeAudio(context.Background(), []byte("bytes"), "rec.wav", "audio/wav", "en")
		require.Error(t, err)

		var appErr *contextutils.AppError
		require.True(t, contextutils.AsError(err, &appErr))
		assert.Equal(t, contextutils.ErrorCodeExternalAPI, appErr.Code)
	})
}
