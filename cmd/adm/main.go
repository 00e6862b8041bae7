// Package main provides the main entry point for the speaking practice
// admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"speakapp/cmd/adm/commands"
	"speakapp/internal/config"
	"speakapp/internal/database"
	"speakapp/internal/observability"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Quieter output for the admin tool; no exporters to connect to
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "speak-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if tps, ok := tp.(interface{ Shutdown(context.Context) error }); ok && tp != nil {
			if err := tps.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Speaking Practice Administration Tool",
		Long: `Speaking Practice Administration Tool

A CLI tool for administering the speaking practice backend.
Provides commands for database migrations, session maintenance,
and audio artifact cleanup.`,

		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, logger, db, cfg.Database.URL))
	rootCmd.AddCommand(commands.SessionCommands(cfg, logger, db))
	rootCmd.AddCommand(commands.CleanupCommands(cfg, logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
