package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultErrorRecoveryConfig(t *testing.T) {
	config := DefaultErrorRecoveryConfig()

	assert.False(t, config.EnableCircuitBreaker)
	assert.Equal(t, 5, config.CircuitBreakerThreshold)
	assert.Equal(t, 30*time.Second, config.CircuitBreakerTimeout)
}

func TestErrorRecoveryMiddleware_PanicRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil))

	router.GET("/panic", func(_ *gin.Context) {
		panic("test panic")
	})

	req, _ := http.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response must carry an error object")
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
	assert.NotEmpty(t, errObj["user_message"])
	assert.Equal(t, errObj["message"], body["detail"])
}

func TestErrorRecoveryMiddleware_NormalRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil))

	router.GET("/normal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req, _ := http.NewRequest("GET", "/normal", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	config := &ErrorRecoveryConfig{
		EnableCircuitBreaker:    true,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   50 * time.Millisecond,
	}

	cb := newCircuitBreaker(config)

	assert.True(t, cb.canExecute())
	assert.Equal(t, circuitClosed, cb.state)

	cb.recordResult(http.StatusInternalServerError)
	cb.recordResult(http.StatusBadGateway)

	assert.False(t, cb.canExecute())
	assert.Equal(t, circuitOpen, cb.state)

	// After the timeout the breaker lets one probe through
	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.canExecute())
	assert.Equal(t, circuitHalfOpen, cb.state)

	cb.recordResult(http.StatusOK)
	assert.Equal(t, circuitClosed, cb.state)
	assert.True(t, cb.canExecute())
}

func TestErrorRecoveryMiddleware_CircuitOpenReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)

	config := &ErrorRecoveryConfig{
		EnableCircuitBreaker:    true,
		CircuitBreakerThreshold: 1,
		CircuitBreakerTimeout:   time.Minute,
	}

	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(config))
	router.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{})
	})

	// First request trips the breaker
	req, _ := http.NewRequest("GET", "/fail", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// Second request is rejected before reaching the handler
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "SERVICE_UNAVAILABLE", errObj["code"])
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     contextutils.ErrorCode
		expected int
	}{
		{contextutils.ErrorCodeAuthError, http.StatusUnauthorized},
		{contextutils.ErrorCodeInvalidCredentials, http.StatusUnauthorized},
		{contextutils.ErrorCodeSessionExpired, http.StatusUnauthorized},
		{contextutils.ErrorCodeValidationError, http.StatusBadRequest},
		{contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{contextutils.ErrorCodeMissingRequired, http.StatusBadRequest},
		{contextutils.ErrorCodeRateLimit, http.StatusTooManyRequests},
		{contextutils.ErrorCodeRecordNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeRecordExists, http.StatusConflict},
		{contextutils.ErrorCodeTimeout, http.StatusRequestTimeout},
		{contextutils.ErrorCodeExternalAPI, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeServiceUnavailable, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeDatabaseConnection, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeProblemGeneration, http.StatusInternalServerError},
		{contextutils.ErrorCodeScoring, http.StatusInternalServerError},
		{contextutils.ErrorCodeSpeechProcessing, http.StatusInternalServerError},
		{contextutils.ErrorCodeGenerationFormat, http.StatusInternalServerError},
		{contextutils.ErrorCodeScoringFormat, http.StatusInternalServerError},
		{contextutils.ErrorCodeInternalError, http.StatusInternalServerError},
		{contextutils.ErrorCode("SOMETHING_NEW"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestHandleAppError_WrappedAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	inner := contextutils.NewAppError(
		contextutils.ErrorCodeRecordNotFound,
		contextutils.SeverityWarn,
		"Session not found",
		"id: abc",
	)
	HandleAppError(c, contextutils.WrapError(inner, "loading session"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAppError_PlainError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	HandleAppError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
	// Raw error text stays out of the client-facing user message
	assert.NotContains(t, errObj["user_message"], assert.AnError.Error())
}
