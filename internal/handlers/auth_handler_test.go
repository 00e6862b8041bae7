package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"speakapp/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_Login(t *testing.T) {
	t.Run("returns token for valid identifier", func(t *testing.T) {
		svc := &stubAuthService{
			loginResp: &models.LoginResponse{
				UserID:    "user-1",
				Token:     "raw-token",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			},
		}
		handler := NewAuthHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/auth/simple-login", handler.Login)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/simple-login",
			strings.NewReader(`{"user_identifier": "learner@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(router, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "learner@example.com", svc.lastIdentifier)

		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "user-1", resp.UserID)
		assert.Equal(t, "raw-token", resp.Token)
	})

	t.Run("rejects missing identifier", func(t *testing.T) {
		svc := &stubAuthService{}
		handler := NewAuthHandler(svc, newTestLogger())

		router := gin.New()
		router.POST("/api/auth/simple-login", handler.Login)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/simple-login", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, svc.lastIdentifier)
	})
}

func TestAuthHandler_Verify(t *testing.T) {
	t.Run("returns user for valid session", func(t *testing.T) {
		svc := &stubAuthService{
			verifyUser: &models.User{ID: "user-1", UserIdentifier: "learner@example.com"},
		}
		handler := NewAuthHandler(svc, newTestLogger())

		router := gin.New()
		router.GET("/api/auth/verify", withSessionToken("raw-token"), handler.Verify)

		w := serve(router, httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "raw-token", svc.lastToken)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["valid"])
	})

	t.Run("rejects request without token on context", func(t *testing.T) {
		handler := NewAuthHandler(&stubAuthService{}, newTestLogger())

		router := gin.New()
		router.GET("/api/auth/verify", handler.Verify)

		w := serve(router, httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
