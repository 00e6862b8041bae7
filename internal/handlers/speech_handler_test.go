package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"speakapp/internal/models"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTranscribeRequest assembles a multipart upload the way the browser
// sends one: an audio_file part with a content type plus form fields.
func buildTranscribeRequest(t *testing.T, fields map[string]string, filename, contentType string, audio []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if audio != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="audio_file"; filename="`+filename+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/speech/transcribe", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSpeechHandler_Transcribe(t *testing.T) {
	t.Run("transcribes an uploaded recording", func(t *testing.T) {
		svc := &stubSpeechService{
			result: &models.TranscriptionResult{Transcript: "I prefer studying alone."},
		}
		handler := NewSpeechHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/speech/transcribe", handler.Transcribe)

		req := buildTranscribeRequest(t,
			map[string]string{"problem_id": "c5dd3a10-ad1b-4aaa-b134-ce06f8765224"},
			"answer.wav", "audio/wav", []byte("RIFFdata"))
		w := serve(router, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []byte("RIFFdata"), svc.lastAudio)
		assert.Equal(t, "answer.wav", svc.lastFilename)
		assert.Equal(t, "audio/wav", svc.lastContentType)
		assert.Equal(t, "en", svc.lastLanguage)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "I prefer studying alone.", resp["transcript"])
		assert.Contains(t, resp, "processing_time")
	})

	t.Run("passes an explicit language through", func(t *testing.T) {
		svc := &stubSpeechService{result: &models.TranscriptionResult{Transcript: "ok"}}
		handler := NewSpeechHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/speech/transcribe", handler.Transcribe)

		req := buildTranscribeRequest(t,
			map[string]string{"problem_id": "c5dd3a10-ad1b-4aaa-b134-ce06f8765224", "language": "ja"},
			"answer.mp3", "audio/mpeg", []byte("ID3"))
		w := serve(router, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ja", svc.lastLanguage)
	})

	t.Run("rejects a request without audio_file", func(t *testing.T) {
		svc := &stubSpeechService{}
		handler := NewSpeechHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/speech/transcribe", handler.Transcribe)

		req := buildTranscribeRequest(t, map[string]string{"problem_id": "c5dd3a10-ad1b-4aaa-b134-ce06f8765224"}, "", "", nil)
		w := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, svc.lastAudio)
	})

	t.Run("rejects a request without problem_id", func(t *testing.T) {
		svc := &stubSpeechService{}
		handler := NewSpeechHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/speech/transcribe", handler.Transcribe)

		req := buildTranscribeRequest(t, nil, "answer.wav", "audio/wav", []byte("RIFF"))
		w := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, svc.lastAudio)
	})

	t.Run("rejects a malformed problem_id", func(t *testing.T) {
		svc := &stubSpeechService{}
		handler := NewSpeechHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/speech/transcribe", handler.Transcribe)

		req := buildTranscribeRequest(t,
			map[string]string{"problem_id": "not-a-uuid"},
			"answer.wav", "audio/wav", []byte("RIFF"))
		w := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, svc.lastAudio)
	})

	t.Run("surfaces validation errors from the service", func(t *testing.T) {
		svc := &stubSpeechService{
			err: contextutils.NewAppError(
				contextutils.ErrorCodeInvalidInput,
				contextutils.SeverityWarn,
				"Unsupported audio format",
				"text/plain",
			),
		}
		handler := NewSpeechHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/speech/transcribe", handler.Transcribe)

		req := buildTranscribeRequest(t,
			map[string]string{"problem_id": "c5dd3a10-ad1b-4aaa-b134-ce06f8765224"},
			"notes.txt", "text/plain", []byte("hello"))
		w := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
