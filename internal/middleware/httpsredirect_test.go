package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"speakapp/internal/config"
	"speakapp/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupHTTPSRouter(cfg config.ServerConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPSRedirectMiddleware(cfg, observability.NewLogger(nil)))
	router.GET("/api/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestHTTPSRedirect_ProductionPlainHTTPRedirects(t *testing.T) {
	router := setupHTTPSRouter(config.ServerConfig{
		Environment:  "production",
		EnforceHTTPS: true,
	})

	req, _ := http.NewRequest("GET", "/api/test?task=task1", nil)
	req.Host = "speak.example.com"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://speak.example.com/api/test?task=task1", w.Header().Get("Location"))
}

func TestHTTPSRedirect_ForwardedProtoPassesThrough(t *testing.T) {
	router := setupHTTPSRouter(config.ServerConfig{
		Environment:  "production",
		EnforceHTTPS: true,
	})

	req, _ := http.NewRequest("GET", "/api/test", nil)
	req.Host = "speak.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPSRedirect_DevelopmentEnvironmentExempt(t *testing.T) {
	router := setupHTTPSRouter(config.ServerConfig{
		Environment:  "development",
		EnforceHTTPS: true,
	})

	req, _ := http.NewRequest("GET", "/api/test", nil)
	req.Host = "speak.example.com"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPSRedirect_LoopbackHostsExempt(t *testing.T) {
	router := setupHTTPSRouter(config.ServerConfig{
		Environment:  "production",
		EnforceHTTPS: true,
	})

	for _, host := range []string{"localhost:8080", "127.0.0.1:8080", "localhost"} {
		req, _ := http.NewRequest("GET", "/api/test", nil)
		req.Host = host
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "host %s should be exempt", host)
	}
}

func TestHTTPSRedirect_DisabledPassesThrough(t *testing.T) {
	router := setupHTTPSRouter(config.ServerConfig{
		Environment:  "production",
		EnforceHTTPS: false,
	})

	req, _ := http.NewRequest("GET", "/api/test", nil)
	req.Host = "speak.example.com"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
