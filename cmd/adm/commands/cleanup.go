package commands

import (
	"context"
	"time"

	"speakapp/internal/config"
	"speakapp/internal/observability"
	"speakapp/internal/services"
	contextutils "speakapp/internal/utils"

	"github.com/spf13/cobra"
)

// CleanupCommands returns the audio artifact cleanup commands
func CleanupCommands(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Audio artifact cleanup commands",
		Long: `Audio artifact cleanup commands.

Available commands:
  sweep   - Delete lecture audio files older than the retention window`,
	}

	cleanupCmd.AddCommand(sweepCmd(cfg, logger))

	return cleanupCmd
}

func sweepCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var maxAgeHours int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete stale lecture audio files",
		Long: `Delete lecture audio files whose modification time is older than the
retention window. Scoring normally removes a session's audio right after
evaluation; the sweep catches files from sessions that were never scored.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			maxAge := time.Duration(maxAgeHours) * time.Hour
			cleanup := services.NewCleanupServiceWithLogger(cfg.Audio.Dir, logger)

			count, err := cleanup.Sweep(ctx, maxAge)
			if err != nil {
				logger.Error(ctx, "Audio sweep failed", err, map[string]interface{}{"audio_dir": cfg.Audio.Dir})
				return contextutils.WrapError(err, "audio sweep failed")
			}

			logger.Info(ctx, "Audio sweep completed", map[string]interface{}{
				"deleted":   count,
				"audio_dir": cfg.Audio.Dir,
				"max_age":   maxAge.String(),
			})
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAgeHours, "max-age", config.DefaultAudioRetentionHours, "maximum artifact age in hours before deletion")

	return cmd
}
