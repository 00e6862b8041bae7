package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"speakapp/internal/config"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
var fastTranscribePolicy = RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func newTestClient(t *testing.T, handler http.Handler) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.OpenAIConfig{
		APIKey:             "test-key",
		BaseURL:            server.URL,
		Model:              "gpt-4",
		TranscriptionModel: "whisper-1",
		TTSModel:           "tts-1",
		TTSVoice:           "alloy",
		TTSSpeed:           0.9,
	}
	client := NewOpenAIClientWithPolicies(cfg, observability.NewLogger(nil), fastPolicy, fastTranscribePolicy, fastPolicy)
	return client, server
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Duration(0), policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 8*time.Second, policy.Delay(4))
	assert.Equal(t, 10*time.Second, policy.Delay(5), "delay is capped at max")
}

func TestRetryPolicy_RetryablePredicate(t *testing.T) {
	t.Run("nil predicate falls back to taxonomy classification", func(t *testing.T) {
		policy := RetryPolicy{MaxAttempts: 3}

		transient := contextutils.NewAppError(contextutils.ErrorCodeExternalAPI,
			contextutils.SeverityError, "upstream unavailable", "")
		permanent := contextutils.NewAppError(contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn, "bad request", "")

		assert.True(t, policy.ShouldRetry(transient))
		assert.False(t, policy.ShouldRetry(permanent))
	})

	t.Run("predicate can veto retries for transient errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(server.Close)

		neverRetry := RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Retryable:   func(error) bool { return false },
		}
		cfg := config.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4"}
		client := NewOpenAIClientWithPolicies(cfg, observability.NewLogger(nil),
			neverRetry, fastTranscribePolicy, fastPolicy)

		_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "the policy predicate overrides the default classification")
	})
}

func TestComplete_SucceedsAfterRetryableFailures(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"generated text"}}]}`))
	}))

	result, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi", Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "generated text", result)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeExternalAPI, appErr.Code)
	assert.Contains(t, appErr.Details, "generation")
}

func TestComplete_NonRetryableFailsImmediately(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-retryable errors must not be retried")

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, appErr.Code)
}

func TestComplete_MalformedResponseNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`not json at all`))
	}))

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeGenerationFormat, appErr.Code)
}

func TestComplete_SendsSystemMessageAndAuth(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))

	_, err := client.Complete(context.Background(), CompletionRequest{
		Prompt:        "question",
		SystemMessage: "you are a tutor",
		Temperature:   0.3,
	})
	require.NoError(t, err)
}

func TestTranscribe_TwoAttemptsOnly(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Transcribe(context.Background(), []byte("audio"), "rec.mp3", "en")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTranscribe_FormatErrorNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"The audio file could not be decoded"}}`))
	}))

	_, err := client.Transcribe(context.Background(), []byte("audio"), "rec.webm", "en")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeSpeechProcessing, appErr.Code)
}

func TestTranscribe_EmptyAudioRejected(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := client.Transcribe(context.Background(), nil, "rec.mp3", "en")
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "empty audio never reaches the provider")
}

func TestTranscribe_Success(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		// WebM names are rewritten before upload
		assert.Equal(t, "rec.ogg", header.Filename)

		_, _ = w.Write([]byte(`{"text":"hello world"}`))
	}))

	transcript, err := client.Transcribe(context.Background(), []byte("audio bytes"), "rec.webm", "en")
	require.NoError(t, err)
	assert.Equal(t, "hello world", transcript)
}

func TestSynthesize_ReturnsAudioBytes(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		_, _ = w.Write([]byte("mp3 audio bytes"))
	}))

	audio, err := client.Synthesize(context.Background(), "lecture text", "", 0.9)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3 audio bytes"), audio)
}

func TestSynthesize_RetriesOnServerError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))

	audio, err := client.Synthesize(context.Background(), "text", "alloy", 0.9)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), audio)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
