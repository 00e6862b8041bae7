package commands

import (
	"context"
	"database/sql"
	"time"

	"speakapp/internal/config"
	"speakapp/internal/observability"
	"speakapp/internal/services"
	contextutils "speakapp/internal/utils"

	"github.com/spf13/cobra"
)

// SessionCommands returns the session maintenance commands
func SessionCommands(cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session token maintenance commands",
		Long: `Session token maintenance commands.

Available commands:
  cleanup   - Delete expired session tokens`,
	}

	sessionsCmd.AddCommand(sessionsCleanupCmd(cfg, logger, db))

	return sessionsCmd
}

func sessionsCleanupCmd(cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired session tokens",
		Long:  `Delete session tokens whose expiry has passed. Active sessions are untouched.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			sessionTTL := time.Duration(cfg.Server.SessionTTLHours) * time.Hour
			authService := services.NewAuthService(db, logger, sessionTTL)

			deleted, err := authService.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Error(ctx, "Session cleanup failed", err, nil)
				return contextutils.WrapError(err, "session cleanup failed")
			}

			logger.Info(ctx, "Expired sessions deleted", map[string]interface{}{"count": deleted})
			return nil
		},
	}
}
