package middleware

import (
	"net"
	"net/http"

	"speakapp/internal/config"
	"speakapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// HTTPSRedirectMiddleware redirects plain HTTP requests to HTTPS.
// Development environments and loopback hosts are exempt so local work
// never needs certificates. Behind a proxy the original protocol arrives
// in X-Forwarded-Proto, so that header counts as secure transport too.
func HTTPSRedirectMiddleware(cfg config.ServerConfig, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.EnforceHTTPS || cfg.IsDevelopment() {
			c.Next()
			return
		}

		host := c.Request.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host == "localhost" || host == "127.0.0.1" {
			c.Next()
			return
		}

		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Next()
			return
		}

		target := "https://" + c.Request.Host + c.Request.URL.RequestURI()
		logger.Warn(c.Request.Context(), "Redirecting plain HTTP request to HTTPS", map[string]interface{}{
			"target": target,
		})
		c.Redirect(http.StatusMovedPermanently, target)
		c.Abort()
	}
}
