package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"speakapp/internal/observability"
)

// CleanupService removes ephemeral lecture audio artifacts. Audio is kept
// only as long as a practice session needs it: the scoring flow deletes the
// session's artifact as soon as the result is committed, and an age-based
// sweep catches anything a client abandoned before scoring.
type CleanupService struct {
	audioDir string
	logger   *observability.Logger
}

// NewCleanupServiceWithLogger creates a new cleanup service with logger
func NewCleanupServiceWithLogger(audioDir string, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		audioDir: audioDir,
		logger:   logger,
	}
}

// AudioDir returns the directory the service manages
func (c *CleanupService) AudioDir() string {
	return c.audioDir
}

// ArtifactPath derives the audio file path for a practice session
func (c *CleanupService) ArtifactPath(sessionID string) string {
	return filepath.Join(c.audioDir, "lecture_"+sessionID+".mp3")
}

// DeleteArtifact removes a single audio file. Returns true when the file is
// absent afterwards, whether it was deleted now or already gone. A path that
// exists but is not a regular file, and any permission or I/O failure, yields
// false; failures are logged, never raised.
func (c *CleanupService) DeleteArtifact(ctx context.Context, path string) bool {
	ctx, span := observability.TraceCleanupFunction(ctx, "delete_artifact",
		attribute.String("cleanup.path", path),
	)
	defer span.End()

	if path == "" {
		c.logger.Warn(ctx, "DeleteArtifact called with empty path", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "empty_path"))
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Already absent counts as success so concurrent cleanup
			// attempts on the same artifact are safe
			span.SetAttributes(attribute.String("cleanup.result", "already_absent"))
			return true
		}
		c.logger.Error(ctx, "Failed to stat audio artifact", err, map[string]interface{}{"path": path})
		span.SetAttributes(attribute.String("cleanup.result", "stat_error"))
		return false
	}

	if !info.Mode().IsRegular() {
		c.logger.Warn(ctx, "Audio artifact path is not a regular file", map[string]interface{}{"path": path})
		span.SetAttributes(attribute.String("cleanup.result", "not_a_file"))
		return false
	}

	if err := os.Remove(path); err != nil {
		c.logger.Error(ctx, "Failed to delete audio artifact", err, map[string]interface{}{"path": path})
		span.SetAttributes(attribute.String("cleanup.result", "remove_error"))
		return false
	}

	c.logger.Info(ctx, "Deleted audio artifact", map[string]interface{}{"path": path})
	span.SetAttributes(attribute.String("cleanup.result", "deleted"))
	return true
}

// CleanupSession deletes the lecture audio associated with a practice
// session. Called once, right after the session's scoring result commits.
// A session that never had audio is a success.
func (c *CleanupService) CleanupSession(ctx context.Context, sessionID string) bool {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_session",
		attribute.String("session.id", sessionID),
	)
	defer span.End()

	path := c.ArtifactPath(sessionID)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		c.logger.Info(ctx, "No audio artifact found for session", map[string]interface{}{"session_id": sessionID})
		span.SetAttributes(attribute.String("cleanup.result", "no_artifact"))
		return true
	}

	return c.DeleteArtifact(ctx, path)
}

// Sweep deletes lecture audio files whose modification time is older than
// maxAge. Returns the number of files deleted. A missing audio directory
// yields zero, not an error.
func (c *CleanupService) Sweep(ctx context.Context, maxAge time.Duration) (count int, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "sweep",
		attribute.String("cleanup.max_age", maxAge.String()),
		attribute.String("cleanup.dir", c.audioDir),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, statErr := os.Stat(c.audioDir); errors.Is(statErr, fs.ErrNotExist) {
		c.logger.Warn(ctx, "Audio directory does not exist, nothing to sweep", map[string]interface{}{"dir": c.audioDir})
		span.SetAttributes(attribute.String("cleanup.result", "missing_dir"))
		return 0, nil
	}

	matches, err := filepath.Glob(filepath.Join(c.audioDir, "lecture_*.mp3"))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, path := range matches {
		info, statErr := os.Stat(path)
		if statErr != nil {
			// Another sweep may have removed it between glob and stat
			continue
		}
		if info.ModTime().Before(cutoff) {
			if c.DeleteArtifact(ctx, path) {
				deleted++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("cleanup.deleted_count", deleted),
		attribute.String("cleanup.result", "success"),
	)
	c.logger.Info(ctx, "Audio sweep completed", map[string]interface{}{
		"deleted": deleted,
		"max_age": maxAge.String(),
	})
	return deleted, nil
}
