// Package main provides the main entry point for the speaking practice
// backend server. It sets up the HTTP server, database connection,
// middleware, and API routes.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speakapp/internal/config"
	"speakapp/internal/database"
	"speakapp/internal/handlers"
	"speakapp/internal/observability"
	"speakapp/internal/services"

	"github.com/gin-gonic/gin"
)

// buildRouter wires the service graph and returns the configured engine.
func buildRouter(cfg *config.Config, db *sql.DB, logger *observability.Logger) *gin.Engine {
	client := services.NewOpenAIClient(cfg.OpenAI, logger)
	sanitizer := services.NewSanitizer(logger)
	cleanup := services.NewCleanupServiceWithLogger(cfg.Audio.Dir, logger)

	sessionTTL := time.Duration(cfg.Server.SessionTTLHours) * time.Hour
	authService := services.NewAuthService(db, logger, sessionTTL)
	problemService := services.NewProblemService(db, client, sanitizer, cleanup, cfg, logger)
	scoringService := services.NewScoringService(db, client, sanitizer, cleanup, logger)
	speechService := services.NewSpeechService(client, cfg.Audio, logger)
	phraseService := services.NewPhraseService(db, logger)

	return handlers.NewRouter(
		cfg,
		authService,
		problemService,
		speechService,
		scoringService,
		phraseService,
		authService,
		logger,
	)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "speak-backend")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if tps, ok := tp.(interface{ Shutdown(context.Context) error }); ok && tp != nil {
			if err := tps.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	logger.Info(ctx, "Starting speak backend service", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
	})

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to initialize database", err, nil)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	router := buildRouter(cfg, db, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully", nil)
	case err := <-serverErr:
		logger.Error(ctx, "Server failed", err, nil)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during server shutdown", err, nil)
		os.Exit(1)
	}

	logger.Info(ctx, "Shutdown completed successfully", nil)
}
