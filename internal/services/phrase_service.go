package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/google/uuid"
)

// PhraseServiceInterface defines the saved phrase operations handlers depend on
type PhraseServiceInterface interface {
	SavePhrase(ctx context.Context, userID, phrase, phraseContext, category string) (*models.SavedPhrase, error)
	ListPhrases(ctx context.Context, userID string) ([]models.SavedPhrase, error)
	UpdateMastered(ctx context.Context, userID, phraseID string, mastered bool) (*models.SavedPhrase, error)
	DeletePhrase(ctx context.Context, userID, phraseID string) error
}

// PhraseService manages the phrases a learner saves from model answers.
type PhraseService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewPhraseService creates a new PhraseService instance
func NewPhraseService(db *sql.DB, logger *observability.Logger) *PhraseService {
	return &PhraseService{db: db, logger: logger}
}

// validatePhraseID checks UUID shape without reformatting; the stored IDs
// are compared as the exact strings they were created with.
func validatePhraseID(phraseID string) error {
	if uuid.Validate(phraseID) != nil {
		return contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid phrase ID format",
			fmt.Sprintf("phrase_id: %s", phraseID),
		)
	}
	return nil
}

// SavePhrase stores a new phrase for the user.
func (s *PhraseService) SavePhrase(ctx context.Context, userID, phrase, phraseContext, category string) (result0 *models.SavedPhrase, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "save_phrase",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if phrase == "" {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeMissingRequired,
			contextutils.SeverityWarn,
			"Phrase text is required",
			"",
		)
	}

	saved := models.SavedPhrase{
		ID:        uuid.NewString(),
		UserID:    userID,
		Phrase:    phrase,
		Context:   sql.NullString{String: phraseContext, Valid: phraseContext != ""},
		Category:  sql.NullString{String: category, Valid: category != ""},
		CreatedAt: time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_phrases (id, user_id, phrase, context, category, is_mastered, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, saved.ID, saved.UserID, saved.Phrase, saved.Context, saved.Category, saved.CreatedAt)
	if err != nil {
		s.logger.Error(ctx, "Failed to save phrase", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to save phrase",
			"",
			err,
		)
	}

	s.logger.Info(ctx, "Phrase saved", map[string]interface{}{
		"phrase_id": saved.ID,
		"user_id":   userID,
	})

	return &saved, nil
}

// ListPhrases returns all phrases the user has saved, newest first.
func (s *PhraseService) ListPhrases(ctx context.Context, userID string) (result0 []models.SavedPhrase, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "list_phrases",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, phrase, context, category, is_mastered, created_at
		FROM saved_phrases
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list phrases")
	}
	defer rows.Close()

	phrases := []models.SavedPhrase{}
	for rows.Next() {
		var p models.SavedPhrase
		if err := rows.Scan(&p.ID, &p.UserID, &p.Phrase, &p.Context, &p.Category, &p.IsMastered, &p.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan phrase")
		}
		phrases = append(phrases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list phrases")
	}

	return phrases, nil
}

// loadOwnedPhrase fetches a phrase and verifies it belongs to the user.
// A phrase owned by someone else is reported as not found rather than
// revealing its existence.
func (s *PhraseService) loadOwnedPhrase(ctx context.Context, userID, phraseID string) (*models.SavedPhrase, error) {
	if err := validatePhraseID(phraseID); err != nil {
		return nil, err
	}

	var p models.SavedPhrase
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, phrase, context, category, is_mastered, created_at
		FROM saved_phrases
		WHERE id = $1
	`, phraseID).Scan(&p.ID, &p.UserID, &p.Phrase, &p.Context, &p.Category, &p.IsMastered, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Phrase not found",
			fmt.Sprintf("phrase_id: %s", phraseID),
		)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load phrase")
	}

	if p.UserID != userID {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Phrase not found",
			fmt.Sprintf("phrase_id: %s", phraseID),
		)
	}

	return &p, nil
}

// UpdateMastered sets the mastered flag on one of the user's phrases.
func (s *PhraseService) UpdateMastered(ctx context.Context, userID, phraseID string, mastered bool) (result0 *models.SavedPhrase, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "update_mastered",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	phrase, err := s.loadOwnedPhrase(ctx, userID, phraseID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE saved_phrases
		SET is_mastered = $1
		WHERE id = $2
	`, mastered, phraseID)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to update phrase",
			fmt.Sprintf("phrase_id: %s", phraseID),
			err,
		)
	}

	phrase.IsMastered = mastered
	return phrase, nil
}

// DeletePhrase removes one of the user's phrases.
func (s *PhraseService) DeletePhrase(ctx context.Context, userID, phraseID string) (err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "delete_phrase",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = s.loadOwnedPhrase(ctx, userID, phraseID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM saved_phrases
		WHERE id = $1
	`, phraseID)
	if err != nil {
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to delete phrase",
			fmt.Sprintf("phrase_id: %s", phraseID),
			err,
		)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Phrase not found",
			fmt.Sprintf("phrase_id: %s", phraseID),
		)
	}

	s.logger.Info(ctx, "Phrase deleted", map[string]interface{}{
		"phrase_id": phraseID,
		"user_id":   userID,
	})
	return nil
}
