package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"speakapp/internal/config"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"
)

// CompletionRequest carries one text-generation call
type CompletionRequest struct {
	Prompt        string
	SystemMessage string
	Temperature   float64
	MaxTokens     int
}

// GenerativeClient is the upstream surface the domain services depend on.
// The concrete OpenAIClient implements it; tests substitute stubs.
type GenerativeClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error)
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// RetryPolicy describes how one operation kind retries. Policies are data:
// each upstream operation carries its own instance instead of hard-coded
// retry loops scattered through call sites. A nil Retryable falls back to
// the error taxonomy's default classification.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// ShouldRetry reports whether the policy considers err transient.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return contextutils.IsRetryable(err)
}

// Delay returns the capped exponential backoff before the given attempt
// (1-based). Attempt 1 has no delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Default retry tables. Transcription sits on a user-synchronous path, so it
// gets fewer, longer-spaced attempts and a malformed recording fails fast
// instead of retrying.
var (
	GenerateRetryPolicy   = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
	SynthesizeRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
	TranscribeRetryPolicy = RetryPolicy{MaxAttempts: 2, BaseDelay: 3 * time.Second, MaxDelay: 15 * time.Second}
)

// OpenAIClient talks to the OpenAI-compatible API for text generation,
// transcription, and speech synthesis. Every call runs under a per-operation
// retry policy and a hard per-attempt timeout.
type OpenAIClient struct {
	cfg        config.OpenAIConfig
	httpClient *http.Client
	logger     *observability.Logger

	generatePolicy   RetryPolicy
	transcribePolicy RetryPolicy
	synthesizePolicy RetryPolicy
}

// NewOpenAIClient creates a client with the default retry tables
func NewOpenAIClient(cfg config.OpenAIConfig, logger *observability.Logger) *OpenAIClient {
	return NewOpenAIClientWithPolicies(cfg, logger, GenerateRetryPolicy, TranscribeRetryPolicy, SynthesizeRetryPolicy)
}

// NewOpenAIClientWithPolicies creates a client with explicit retry tables
func NewOpenAIClientWithPolicies(cfg config.OpenAIConfig, logger *observability.Logger, generate, transcribe, synthesize RetryPolicy) *OpenAIClient {
	httpClient := &http.Client{
		// Per-attempt deadlines come from the request context; the transport
		// timeout is only a backstop
		Timeout: config.GenerateRequestTimeout + 5*time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &OpenAIClient{
		cfg:              cfg,
		httpClient:       httpClient,
		logger:           logger,
		generatePolicy:   generate,
		transcribePolicy: transcribe,
		synthesizePolicy: synthesize,
	}
}

// callWithRetry runs fn under the policy, backing off exponentially between
// attempts. Non-retryable failures propagate after the first attempt. On
// exhaustion the last error is wrapped as an upstream failure naming the
// service.
func (c *OpenAIClient) callWithRetry(ctx context.Context, serviceName string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if delay := policy.Delay(attempt); delay > 0 {
			c.logger.Warn(ctx, "Retrying upstream call after backoff", map[string]interface{}{
				"service": serviceName,
				"attempt": attempt,
				"delay":   delay.String(),
			})
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return contextutils.WrapError(ctx.Err(), "retry wait canceled")
			case <-timer.C:
			}
		}

		trace.SpanFromContext(ctx).SetAttributes(observability.AttributeAttempt(attempt))

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !policy.ShouldRetry(err) {
			c.logger.Warn(ctx, "Upstream call failed with non-retryable error", map[string]interface{}{
				"service": serviceName,
				"attempt": attempt,
			})
			return err
		}

		c.logger.Warn(ctx, "Upstream call failed", map[string]interface{}{
			"service": serviceName,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	return contextutils.NewAppErrorWithCause(
		contextutils.ErrorCodeExternalAPI,
		contextutils.SeverityError,
		fmt.Sprintf("%s request failed after %d attempts", serviceName, policy.MaxAttempts),
		fmt.Sprintf("service: %s", serviceName),
		lastErr,
	)
}

// classifyStatus converts an upstream HTTP status into the matching error.
// Throttling, timeouts, and 5xx responses are retryable; everything else in
// the 4xx range means the request itself is wrong and retrying cannot help.
func classifyStatus(serviceName string, statusCode int, body string) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return contextutils.NewAppError(
			contextutils.ErrorCodeExternalAPI,
			contextutils.SeverityWarn,
			fmt.Sprintf("%s throttled the request", serviceName),
			fmt.Sprintf("status %d", statusCode),
		)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return contextutils.NewAppError(
			contextutils.ErrorCodeTimeout,
			contextutils.SeverityWarn,
			fmt.Sprintf("%s request timed out", serviceName),
			fmt.Sprintf("status %d", statusCode),
		)
	case statusCode >= 500:
		return contextutils.NewAppError(
			contextutils.ErrorCodeExternalAPI,
			contextutils.SeverityError,
			fmt.Sprintf("%s returned a server error", serviceName),
			fmt.Sprintf("status %d: %s", statusCode, body),
		)
	default:
		return contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityError,
			fmt.Sprintf("%s rejected the request", serviceName),
			fmt.Sprintf("status %d: %s", statusCode, body),
		)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete generates text from a prompt
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (result string, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "complete",
		observability.AttributeService("generation"),
		attribute.Float64("request.temperature", req.Temperature),
	)
	defer observability.FinishSpan(span, &err)

	err = c.callWithRetry(ctx, "generation", c.generatePolicy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, config.GenerateRequestTimeout)
		defer cancel()

		messages := make([]chatMessage, 0, 2)
		if req.SystemMessage != "" {
			messages = append(messages, chatMessage{Role: "system", Content: req.SystemMessage})
		}
		messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

		body, marshalErr := json.Marshal(chatCompletionRequest{
			Model:       c.cfg.Model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if marshalErr != nil {
			return contextutils.WrapError(marshalErr, "failed to marshal completion request")
		}

		httpReq, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(body))
		if reqErr != nil {
			return contextutils.WrapError(reqErr, "failed to create HTTP request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		respBody, callErr := c.do(callCtx, "generation", httpReq)
		if callErr != nil {
			return callErr
		}

		var completion chatCompletionResponse
		if unmarshalErr := json.Unmarshal(respBody, &completion); unmarshalErr != nil {
			return contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeGenerationFormat,
				contextutils.SeverityError,
				"generation response is not valid JSON",
				"",
				unmarshalErr,
			)
		}
		if completion.Error != nil {
			return contextutils.NewAppError(
				contextutils.ErrorCodeExternalAPI,
				contextutils.SeverityError,
				"generation provider returned an error",
				completion.Error.Message,
			)
		}
		if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
			return contextutils.NewAppError(
				contextutils.ErrorCodeGenerationFormat,
				contextutils.SeverityError,
				"generation provider returned no content",
				"",
			)
		}

		result = completion.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe converts recorded speech to text. Browser recordings sometimes
// arrive as WebM, which the transcription endpoint handles poorly under that
// name, so the filename is rewritten to .ogg before upload.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename, language string) (result string, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "transcribe",
		observability.AttributeService("transcription"),
		attribute.Int("audio.size_bytes", len(audio)),
	)
	defer observability.FinishSpan(span, &err)

	if len(audio) == 0 {
		return "", contextutils.NewAppError(
			contextutils.ErrorCodeSpeechProcessing,
			contextutils.SeverityWarn,
			"audio file is empty",
			"",
		)
	}

	if strings.Contains(strings.ToLower(filename), "webm") {
		filename = strings.Replace(filename, ".webm", ".ogg", 1)
	}
	if language == "" {
		language = "en"
	}

	err = c.callWithRetry(ctx, "transcription", c.transcribePolicy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, config.TranscribeRequestTimeout)
		defer cancel()

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, formErr := writer.CreateFormFile("file", filename)
		if formErr != nil {
			return contextutils.WrapError(formErr, "failed to create multipart file field")
		}
		if _, copyErr := part.Write(audio); copyErr != nil {
			return contextutils.WrapError(copyErr, "failed to write audio to multipart body")
		}
		if fieldErr := writer.WriteField("model", c.cfg.TranscriptionModel); fieldErr != nil {
			return contextutils.WrapError(fieldErr, "failed to write model field")
		}
		if fieldErr := writer.WriteField("language", language); fieldErr != nil {
			return contextutils.WrapError(fieldErr, "failed to write language field")
		}
		if closeErr := writer.Close(); closeErr != nil {
			return contextutils.WrapError(closeErr, "failed to finalize multipart body")
		}

		httpReq, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &buf)
		if reqErr != nil {
			return contextutils.WrapError(reqErr, "failed to create HTTP request")
		}
		httpReq.Header.Set("Content-Type", writer.FormDataContentType())
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		respBody, callErr := c.doTranscription(callCtx, httpReq)
		if callErr != nil {
			return callErr
		}

		var transcription transcriptionResponse
		if unmarshalErr := json.Unmarshal(respBody, &transcription); unmarshalErr != nil {
			return contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeSpeechProcessing,
				contextutils.SeverityError,
				"transcription response is not valid JSON",
				"",
				unmarshalErr,
			)
		}

		result = transcription.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

type speechRequest struct {
	Model string  `json:"model"`
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// Synthesize converts text to MP3 audio
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string, speed float64) (result []byte, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "synthesize",
		observability.AttributeService("speech_synthesis"),
		attribute.String("tts.voice", voice),
		attribute.Float64("tts.speed", speed),
	)
	defer observability.FinishSpan(span, &err)

	if voice == "" {
		voice = c.cfg.TTSVoice
	}

	err = c.callWithRetry(ctx, "speech synthesis", c.synthesizePolicy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, config.SynthesizeRequestTimeout)
		defer cancel()

		body, marshalErr := json.Marshal(speechRequest{
			Model: c.cfg.TTSModel,
			Input: text,
			Voice: voice,
			Speed: speed,
		})
		if marshalErr != nil {
			return contextutils.WrapError(marshalErr, "failed to marshal speech request")
		}

		httpReq, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewBuffer(body))
		if reqErr != nil {
			return contextutils.WrapError(reqErr, "failed to create HTTP request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		respBody, callErr := c.do(callCtx, "speech synthesis", httpReq)
		if callErr != nil {
			return callErr
		}

		result = respBody
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// do executes a request and classifies the outcome
func (c *OpenAIClient) do(ctx context.Context, serviceName string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeTimeout,
				contextutils.SeverityWarn,
				fmt.Sprintf("%s request timed out", serviceName),
				fmt.Sprintf("after %v", duration),
				err,
			)
		}
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeExternalAPI,
			contextutils.SeverityError,
			fmt.Sprintf("%s request failed", serviceName),
			fmt.Sprintf("after %v", duration),
			err,
		)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read response body")
	}

	c.logger.Info(ctx, "Upstream request completed", map[string]interface{}{
		"service":     serviceName,
		"status_code": resp.StatusCode,
		"duration":    duration.String(),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(serviceName, resp.StatusCode, string(body))
	}
	return body, nil
}

// doTranscription is do with transcription-specific classification of 4xx
// responses: an unsupported or corrupted recording is the caller's problem
// and must not be retried.
func (c *OpenAIClient) doTranscription(ctx context.Context, req *http.Request) ([]byte, error) {
	body, err := c.do(ctx, "transcription", req)
	if err == nil {
		return body, nil
	}

	var appErr *contextutils.AppError
	if contextutils.AsError(err, &appErr) && appErr.Code == contextutils.ErrorCodeInvalidInput {
		lower := strings.ToLower(appErr.Details)
		if strings.Contains(lower, "could not be decoded") ||
			strings.Contains(lower, "format is not supported") ||
			strings.Contains(lower, "invalid file format") ||
			strings.Contains(lower, "audio decoding failed") {
			return nil, contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeSpeechProcessing,
				contextutils.SeverityWarn,
				"audio recording could not be decoded",
				appErr.Details,
				err,
			)
		}
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeSpeechProcessing,
			contextutils.SeverityWarn,
			"transcription request was rejected",
			appErr.Details,
			err,
		)
	}
	return nil, err
}
