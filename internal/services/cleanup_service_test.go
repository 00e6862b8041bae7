package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"speakapp/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCleanupService(t *testing.T) (*CleanupService, string) {
	t.Helper()
	dir := t.TempDir()
	return NewCleanupServiceWithLogger(dir, observability.NewLogger(nil)), dir
}

func writeAudioFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("mp3 bytes"), 0o600))
	return path
}

func TestDeleteArtifact(t *testing.T) {
	ctx := context.Background()

	t.Run("existing file is deleted", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)
		path := writeAudioFile(t, dir, "lecture_abc.mp3")

		assert.True(t, svc.DeleteArtifact(ctx, path))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("absent file is success", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)
		assert.True(t, svc.DeleteArtifact(ctx, filepath.Join(dir, "lecture_missing.mp3")))
	})

	t.Run("directory path is failure", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)
		sub := filepath.Join(dir, "subdir")
		require.NoError(t, os.Mkdir(sub, 0o750))

		assert.False(t, svc.DeleteArtifact(ctx, sub))
		_, err := os.Stat(sub)
		assert.NoError(t, err, "directory must not be removed")
	})

	t.Run("empty path is failure", func(t *testing.T) {
		svc, _ := newTestCleanupService(t)
		assert.False(t, svc.DeleteArtifact(ctx, ""))
	})

	t.Run("deleting twice is still success", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)
		path := writeAudioFile(t, dir, "lecture_twice.mp3")

		assert.True(t, svc.DeleteArtifact(ctx, path))
		assert.True(t, svc.DeleteArtifact(ctx, path))
	})
}

func TestCleanupSession(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the session artifact", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)
		path := writeAudioFile(t, dir, "lecture_session-1.mp3")
		writeAudioFile(t, dir, "lecture_session-2.mp3")

		assert.True(t, svc.CleanupSession(ctx, "session-1"))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))

		// Other sessions' audio is untouched
		_, err = os.Stat(filepath.Join(dir, "lecture_session-2.mp3"))
		assert.NoError(t, err)
	})

	t.Run("session without audio is success", func(t *testing.T) {
		svc, _ := newTestCleanupService(t)
		assert.True(t, svc.CleanupSession(ctx, "never-had-audio"))
	})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes only files older than max age", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)

		oldPath := writeAudioFile(t, dir, "lecture_old.mp3")
		stale := time.Now().Add(-25 * time.Hour)
		require.NoError(t, os.Chtimes(oldPath, stale, stale))

		freshPath := writeAudioFile(t, dir, "lecture_fresh.mp3")

		count, err := svc.Sweep(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		_, err = os.Stat(oldPath)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(freshPath)
		assert.NoError(t, err)
	})

	t.Run("ignores files outside the artifact naming scheme", func(t *testing.T) {
		svc, dir := newTestCleanupService(t)

		otherPath := writeAudioFile(t, dir, "notes.txt")
		stale := time.Now().Add(-48 * time.Hour)
		require.NoError(t, os.Chtimes(otherPath, stale, stale))

		count, err := svc.Sweep(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		_, err = os.Stat(otherPath)
		assert.NoError(t, err)
	})

	t.Run("missing directory yields zero", func(t *testing.T) {
		svc := NewCleanupServiceWithLogger(filepath.Join(t.TempDir(), "does-not-exist"), observability.NewLogger(nil))

		count, err := svc.Sweep(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestArtifactPath(t *testing.T) {
	svc := NewCleanupServiceWithLogger("/var/audio", observability.NewLogger(nil))
	assert.Equal(t, filepath.Join("/var/audio", "lecture_abc-123.mp3"), svc.ArtifactPath("abc-123"))
}
