package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

// AuthServiceInterface defines the auth operations handlers depend on
type AuthServiceInterface interface {
	Login(ctx context.Context, userIdentifier string) (*models.LoginResponse, error)
	ValidateSessionToken(ctx context.Context, token string) (string, error)
	VerifySession(ctx context.Context, token string) (*models.User, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// AuthService implements identifier-based login with opaque bearer tokens.
// Only a bcrypt hash of each token is stored; the raw token is returned to
// the client exactly once, at login.
type AuthService struct {
	db         *sql.DB
	logger     *observability.Logger
	sessionTTL time.Duration
}

// NewAuthService creates a new AuthService instance
func NewAuthService(db *sql.DB, logger *observability.Logger, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		db:         db,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

const (
	// TokenPrefix marks all session tokens issued by this service
	TokenPrefix = "spk_"
	// TokenLength is the length of the random part of the token
	TokenLength = 32
)

// generateSessionToken generates a new random bearer token
func generateSessionToken() (string, error) {
	randomBytes := make([]byte, TokenLength/2)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(randomBytes), nil
}

// hashSessionToken hashes a token using bcrypt
func hashSessionToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash session token: %w", err)
	}
	return string(hash), nil
}

// Login creates or fetches the user for an identifier and issues a session
// token valid for the configured TTL
func (s *AuthService) Login(ctx context.Context, userIdentifier string) (*models.LoginResponse, error) {
	ctx, span := observability.TraceAuthFunction(ctx, "login")
	defer observability.FinishSpan(span, nil)

	if userIdentifier == "" {
		err := contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"User identifier is required",
			"",
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	user, err := s.getOrCreateUser(ctx, userIdentifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve user")
		return nil, err
	}

	rawToken, err := generateSessionToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate session token")
		return nil, contextutils.WrapError(err, "failed to generate session token")
	}

	tokenHash, err := hashSessionToken(rawToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash session token")
		return nil, contextutils.WrapError(err, "failed to hash session token")
	}

	now := time.Now()
	expiresAt := now.Add(s.sessionTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), user.ID, tokenHash, expiresAt, now)
	if err != nil {
		s.logger.Error(ctx, "Failed to store session token", err, map[string]interface{}{
			"user_id": user.ID,
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store session token")
		return nil, contextutils.WrapError(err, "failed to store session token")
	}

	span.SetAttributes(observability.AttributeUserID(user.ID))
	s.logger.Info(ctx, "Issued session token", map[string]interface{}{
		"user_id":    user.ID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	return &models.LoginResponse{
		UserID:    user.ID,
		Token:     rawToken,
		ExpiresAt: expiresAt,
	}, nil
}

// getOrCreateUser looks a user up by identifier, creating the row on first
// login. User IDs are UUID strings generated here and never reformatted.
func (s *AuthService) getOrCreateUser(ctx context.Context, userIdentifier string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_identifier, created_at, updated_at
		FROM users
		WHERE user_identifier = $1
	`, userIdentifier).Scan(&user.ID, &user.UserIdentifier, &user.CreatedAt, &user.UpdatedAt)
	if err == nil {
		return &user, nil
	}
	if err != sql.ErrNoRows {
		return nil, contextutils.WrapError(err, "failed to look up user")
	}

	now := time.Now()
	user = models.User{
		ID:             uuid.NewString(),
		UserIdentifier: userIdentifier,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, user_identifier, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.UserIdentifier, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create user")
	}

	s.logger.Info(ctx, "Created new user", map[string]interface{}{"user_id": user.ID})
	return &user, nil
}

// ValidateSessionToken resolves a raw bearer token to a user ID. Tokens are
// stored hashed, so every candidate row is checked with a bcrypt comparison.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) (string, error) {
	ctx, span := observability.TraceAuthFunction(ctx, "validate_session_token")
	defer observability.FinishSpan(span, nil)

	if token == "" || len(token) < len(TokenPrefix) || token[:len(TokenPrefix)] != TokenPrefix {
		span.SetStatus(codes.Error, "invalid token format")
		return "", contextutils.NewAppError(
			contextutils.ErrorCodeAuthError,
			contextutils.SeverityWarn,
			"Invalid session token",
			"",
		)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, token_hash, expires_at
		FROM session_tokens
	`)
	if err != nil {
		s.logger.Error(ctx, "Failed to query session tokens", err, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query session tokens")
		return "", contextutils.WrapError(err, "failed to validate session token")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	now := time.Now()
	for rows.Next() {
		var userID, tokenHash string
		var expiresAt time.Time
		if scanErr := rows.Scan(&userID, &tokenHash, &expiresAt); scanErr != nil {
			s.logger.Error(ctx, "Failed to scan session token", scanErr, nil)
			continue
		}

		if bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
			continue
		}

		if expiresAt.Before(now) {
			span.SetStatus(codes.Error, "session expired")
			return "", contextutils.NewAppError(
				contextutils.ErrorCodeSessionExpired,
				contextutils.SeverityWarn,
				"Session expired",
				"",
			)
		}

		span.SetAttributes(observability.AttributeUserID(userID))
		return userID, nil
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to iterate session tokens")
		return "", contextutils.WrapError(err, "failed to validate session token")
	}

	span.SetStatus(codes.Error, "unknown session token")
	return "", contextutils.NewAppError(
		contextutils.ErrorCodeAuthError,
		contextutils.SeverityWarn,
		"Invalid session token",
		"",
	)
}

// VerifySession validates a token and loads the owning user
func (s *AuthService) VerifySession(ctx context.Context, token string) (*models.User, error) {
	ctx, span := observability.TraceAuthFunction(ctx, "verify_session")
	defer observability.FinishSpan(span, nil)

	userID, err := s.ValidateSessionToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_identifier, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.UserIdentifier, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeAuthError,
			contextutils.SeverityWarn,
			"Invalid session token",
			"session references a deleted user",
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load user")
		return nil, contextutils.WrapError(err, "failed to load user")
	}

	return &user, nil
}

// DeleteExpiredSessions removes session rows past their expiry. Run from the
// maintenance CLI; the validation path already refuses expired tokens.
func (s *AuthService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	ctx, span := observability.TraceAuthFunction(ctx, "delete_expired_sessions")
	defer observability.FinishSpan(span, nil)

	result, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete expired sessions")
		return 0, contextutils.WrapError(err, "failed to delete expired sessions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to count deleted sessions")
	}

	span.SetAttributes(attribute.Int64("sessions.deleted", deleted))
	s.logger.Info(ctx, "Deleted expired sessions", map[string]interface{}{"deleted": deleted})
	return deleted, nil
}
