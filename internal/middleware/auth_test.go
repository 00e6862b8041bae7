package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessionValidator struct {
	userID string
	err    error
}

func (s *stubSessionValidator) ValidateSessionToken(_ context.Context, _ string) (string, error) {
	return s.userID, s.err
}

func setupAuthRouter(validator SessionValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RequireSession(validator), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": contextutils.GetUserIDFromContext(c.Request.Context()),
		})
	})
	return router
}

func TestRequireSession_ValidToken(t *testing.T) {
	router := setupAuthRouter(&stubSessionValidator{userID: "user-123"})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user-123", body["user_id"])
}

func TestRequireSession_MissingHeader(t *testing.T) {
	router := setupAuthRouter(&stubSessionValidator{userID: "user-123"})

	req, _ := http.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "AUTH_ERROR", errObj["code"])
	assert.NotEmpty(t, errObj["user_message"])
}

func TestRequireSession_NonBearerScheme(t *testing.T) {
	router := setupAuthRouter(&stubSessionValidator{userID: "user-123"})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_ExpiredSession(t *testing.T) {
	router := setupAuthRouter(&stubSessionValidator{
		err: contextutils.NewAppError(
			contextutils.ErrorCodeSessionExpired,
			contextutils.SeverityWarn,
			"Session expired",
			"",
		),
	})

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "SESSION_EXPIRED", errObj["code"])
}

func TestOptionalSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("anonymous request passes through", func(t *testing.T) {
		router := gin.New()
		router.GET("/open", OptionalSession(&stubSessionValidator{userID: "user-123"}), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"user_id": contextutils.GetUserIDFromContext(c.Request.Context()),
			})
		})

		req, _ := http.NewRequest("GET", "/open", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "", body["user_id"])
	})

	t.Run("invalid token treated as anonymous", func(t *testing.T) {
		router := gin.New()
		router.GET("/open", OptionalSession(&stubSessionValidator{err: assert.AnError}), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"user_id": contextutils.GetUserIDFromContext(c.Request.Context()),
			})
		})

		req, _ := http.NewRequest("GET", "/open", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "", body["user_id"])
	})

	t.Run("valid token resolved", func(t *testing.T) {
		router := gin.New()
		router.GET("/open", OptionalSession(&stubSessionValidator{userID: "user-456"}), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"user_id": contextutils.GetUserIDFromContext(c.Request.Context()),
			})
		})

		req, _ := http.NewRequest("GET", "/open", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "user-456", body["user_id"])
	})
}
