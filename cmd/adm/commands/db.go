// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"os"

	"speakapp/internal/database"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, logger *observability.Logger, db *sql.DB, databaseURL string) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the speaking practice backend.

Available commands:
  migrate   - Apply pending schema migrations
  stats     - Show database statistics`,
	}

	dbCmd.AddCommand(migrateCmd(dbManager, logger, databaseURL))
	dbCmd.AddCommand(statsCmd(logger, db))

	return dbCmd
}

func migrateCmd(dbManager *database.Manager, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Apply all pending schema migrations to the configured database.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			logger.Info(ctx, "Running migrations", map[string]interface{}{
				"db_url": maskDatabaseURL(databaseURL),
			})

			if err := dbManager.RunMigrations(databaseURL); err != nil {
				logger.Error(ctx, "Migrations failed", err, nil)
				return contextutils.WrapError(err, "migrations failed")
			}

			logger.Info(ctx, "Migrations applied successfully", nil)
			return nil
		},
	}
}

func statsCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show row counts for users, practice sessions, and saved phrases.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			logger.Info(ctx, "Diagnostic info", map[string]interface{}{
				"config_file": os.Getenv("SPEAK_CONFIG_FILE"),
				"database":    getDatabaseInfo(db),
			})

			stats := map[string]interface{}{}
			for label, query := range map[string]string{
				"users":             "SELECT COUNT(*) FROM users",
				"practice_sessions": "SELECT COUNT(*) FROM practice_sessions",
				"saved_phrases":     "SELECT COUNT(*) FROM saved_phrases",
				"active_sessions":   "SELECT COUNT(*) FROM session_tokens WHERE expires_at > NOW()",
			} {
				var count int64
				if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
					logger.Error(ctx, "Failed to gather statistics", err, map[string]interface{}{"table": label})
					return contextutils.WrapError(err, "failed to gather statistics")
				}
				stats[label] = count
			}

			logger.Info(ctx, "Database statistics", stats)
			return nil
		},
	}
}
