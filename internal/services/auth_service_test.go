package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateSessionToken(t *testing.T) {
	token, err := generateSessionToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, token, len(TokenPrefix)+TokenLength)

	// Tokens must be unique across calls
	other, err := generateSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashSessionToken(t *testing.T) {
	token, err := generateSessionToken()
	require.NoError(t, err)

	hash, err := hashSessionToken(token)
	require.NoError(t, err)

	assert.NotEqual(t, token, hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("spk_wrong")))
}

func TestLogin_RequiresIdentifier(t *testing.T) {
	svc := NewAuthService(nil, observability.NewLogger(nil), 24*time.Hour)

	_, err := svc.Login(context.Background(), "")
	require.Error(t, err)

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, appErr.Code)
}

func TestValidateSessionToken_RejectsMalformedTokens(t *testing.T) {
	svc := NewAuthService(nil, observability.NewLogger(nil), 24*time.Hour)

	// All of these fail the prefix check before any database access
	for _, token := range []string{"", "spk", "tok_abcdef", "bearer"} {
		_, err := svc.ValidateSessionToken(context.Background(), token)
		require.Error(t, err, "token %q", token)

		var appErr *contextutils.AppError
		require.True(t, contextutils.AsError(err, &appErr))
		assert.Equal(t, contextutils.ErrorCodeAuthError, appErr.Code)
	}
}

func TestSessionTokenExpiry(t *testing.T) {
	now := time.Now()

	fresh := models.SessionToken{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, fresh.IsExpired(now))

	stale := models.SessionToken{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, stale.IsExpired(now))
}
