package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"speakapp/internal/config"
	"speakapp/internal/middleware"
	"speakapp/internal/observability"
	"speakapp/internal/services"
	"speakapp/internal/version"
)

// NewRouter builds the Gin engine with all middleware and routes wired.
func NewRouter(
	cfg *config.Config,
	authService services.AuthServiceInterface,
	problemService services.ProblemServiceInterface,
	speechService services.SpeechServiceInterface,
	scoringService services.ScoringServiceInterface,
	phraseService services.PhraseServiceInterface,
	sessionValidator middleware.SessionValidator,
	logger *observability.Logger,
) *gin.Engine {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = false

	// HTTP request logging using the observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "speak-backend"})
	})

	router.Use(middleware.ErrorRecoveryMiddleware(middleware.DefaultErrorRecoveryConfig()))

	// OpenTelemetry middleware for HTTP tracing and context propagation
	router.Use(observability.GinMiddlewareWithErrorHandling("speak-backend"))

	// Redirect plain-HTTP requests when HTTPS is enforced
	router.Use(middleware.HTTPSRedirectMiddleware(cfg.Server, logger))

	// CORS
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowCredentials = len(cfg.Server.CORSOrigins) > 0
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Security headers. TLS termination happens upstream, so SSLRedirect
	// stays off here and HTTPSRedirectMiddleware handles enforcement.
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	secureConfig.IsDevelopment = cfg.Server.IsDevelopment()
	router.Use(secure.New(secureConfig))

	// Sliding-window rate limiting, shared across all API routes
	rateLimitStore := middleware.NewMemoryRateLimitStore()
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit, rateLimitStore, logger))

	// Handlers
	authHandler := NewAuthHandler(authService, logger)
	problemHandler := NewProblemHandler(problemService, logger)
	speechHandler := NewSpeechHandler(speechService, logger)
	scoringHandler := NewScoringHandler(scoringService, logger)
	phraseHandler := NewPhraseHandler(phraseService, logger)

	// Generated lecture audio is served straight off disk. Files are
	// short-lived; the cleanup scheduler removes them after scoring.
	router.Static("/audio", cfg.Audio.Dir)

	router.GET("/v1/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		})
	})

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/simple-login", authHandler.Login)
			auth.GET("/verify", middleware.RequireSession(sessionValidator), authHandler.Verify)
		}

		// Problem generation works for anonymous users too; a session
		// just attaches history so repeated questions are avoided.
		problems := api.Group("/problems")
		problems.Use(middleware.OptionalSession(sessionValidator))
		{
			problems.POST("/generate", problemHandler.GenerateProblem)
			problems.GET("/:id", problemHandler.GetProblem)
		}

		speech := api.Group("/speech")
		speech.Use(middleware.OptionalSession(sessionValidator))
		{
			speech.POST("/transcribe", speechHandler.Transcribe)
		}

		scoring := api.Group("/scoring")
		scoring.Use(middleware.OptionalSession(sessionValidator))
		{
			scoring.POST("/evaluate", scoringHandler.Evaluate)
			scoring.POST("/model-answer/generate", scoringHandler.ModelAnswer)
			scoring.POST("/ai-review", scoringHandler.AIReview)
			scoring.POST("/ai-review/save", scoringHandler.SaveAIReview)
		}

		history := api.Group("/history")
		history.Use(middleware.RequireSession(sessionValidator))
		{
			history.GET("", problemHandler.History)
			history.GET("/:id", problemHandler.HistoryDetail)
		}

		phrases := api.Group("/phrases")
		phrases.Use(middleware.RequireSession(sessionValidator))
		{
			phrases.POST("", phraseHandler.Save)
			phrases.GET("", phraseHandler.List)
			phrases.PATCH("/:id", phraseHandler.Update)
			phrases.DELETE("/:id", phraseHandler.Delete)
		}
	}

	// JSON 404 for unmatched API paths, plain 404 elsewhere
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || strings.HasPrefix(c.Request.URL.Path, "/v1/") {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "RECORD_NOT_FOUND",
				"message": "Route not found",
				"details": c.Request.Method + " " + c.Request.URL.Path,
			})
			return
		}
		c.String(http.StatusNotFound, "404 page not found")
	})

	// Route listing served at the root for quick discovery
	routeListing := NewRouteListingHandler("Speak Backend")
	routeListing.CollectRoutes(router)
	router.GET("/", func(c *gin.Context) {
		if c.Query("json") == "true" {
			routeListing.GetRouteListingJSON(c)
			return
		}
		routeListing.GetRouteListingPage(c)
	})
	router.GET("/v1/docs", routeListing.GetRouteListingJSON)

	return router
}
