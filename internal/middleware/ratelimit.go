package middleware

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"speakapp/internal/config"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// rateLimitBypassPaths are never rate limited so health checks and probes
// cannot exhaust a shared identity's budget.
var rateLimitBypassPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/v1/docs": true,
}

// RateLimitStore holds admission timestamps per identity. The in-memory
// implementation below covers single-process deployments; a shared store
// behind the same interface is needed for multi-instance setups.
type RateLimitStore interface {
	// Admit evicts timestamps older than now-window for the identity, then
	// either appends now and reports the remaining budget, or rejects.
	// The whole read-evict-count-append cycle is atomic per identity.
	Admit(identity string, now time.Time, window time.Duration, capacity int) (allowed bool, remaining int)
}

// MemoryRateLimitStore is an in-process RateLimitStore guarded by one mutex.
// Identity cardinality is small (one entry per active user or address), so a
// coarse lock is sufficient.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	history map[string][]time.Time
}

// NewMemoryRateLimitStore creates an empty in-memory store
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		history: make(map[string][]time.Time),
	}
}

// Admit implements RateLimitStore
func (s *MemoryRateLimitStore) Admit(identity string, now time.Time, window time.Duration, capacity int) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.history[identity][:0]
	for _, ts := range s.history[identity] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= capacity {
		s.history[identity] = kept
		return false, 0
	}

	s.history[identity] = append(kept, now)
	remaining := capacity - len(kept) - 1
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// RateLimitMiddleware enforces a sliding-window request budget per identity.
// Identity precedence: bearer token, then the first hop of X-Forwarded-For,
// then the direct peer address. Address-based identities carry an "ip:"
// prefix so a token value can never collide with an address.
func RateLimitMiddleware(cfg config.RateLimitConfig, store RateLimitStore, logger *observability.Logger) gin.HandlerFunc {
	window := time.Duration(cfg.WindowSeconds) * time.Second

	return func(c *gin.Context) {
		if !cfg.Enabled || rateLimitBypassPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		identity := resolveIdentity(c)
		now := time.Now()

		allowed, remaining := store.Admit(identity, now, window, cfg.Requests)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.Requests))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", now.Add(window).Unix()))

		if !allowed {
			logger.Warn(c.Request.Context(), "Rate limit exceeded", map[string]interface{}{
				"identity": contextutils.MaskToken(identity),
				"path":     c.Request.URL.Path,
			})
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%d", cfg.WindowSeconds))
			StandardizeAppError(c, contextutils.NewAppError(
				contextutils.ErrorCodeRateLimit,
				contextutils.SeverityWarn,
				"Rate limit exceeded",
				fmt.Sprintf("limit of %d requests per %d seconds reached", cfg.Requests, cfg.WindowSeconds),
			))
			c.Abort()
			return
		}

		// Best-effort count: a concurrent request may consume a slot between
		// the admission decision and the time the client reads this header.
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Next()
	}
}

// resolveIdentity picks the rate-limit subject for a request
func resolveIdentity(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	return "ip:" + host
}
