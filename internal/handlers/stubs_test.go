package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestLogger() *observability.Logger {
	return observability.NewLogger(nil)
}

// withUser injects an authenticated user ID the way the session middleware
// would, so handlers under test can read it off the request context.
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := contextutils.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func withSessionToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := contextutils.WithSessionToken(c.Request.Context(), token)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type stubAuthService struct {
	loginResp      *models.LoginResponse
	loginErr       error
	lastIdentifier string

	verifyUser *models.User
	verifyErr  error
	lastToken  string

	validateUserID string
	validateErr    error
}

func (s *stubAuthService) Login(_ context.Context, userIdentifier string) (*models.LoginResponse, error) {
	s.lastIdentifier = userIdentifier
	return s.loginResp, s.loginErr
}

func (s *stubAuthService) ValidateSessionToken(_ context.Context, token string) (string, error) {
	s.lastToken = token
	return s.validateUserID, s.validateErr
}

func (s *stubAuthService) VerifySession(_ context.Context, token string) (*models.User, error) {
	s.lastToken = token
	return s.verifyUser, s.verifyErr
}

func (s *stubAuthService) DeleteExpiredSessions(context.Context) (int64, error) {
	return 0, nil
}

type stubProblemService struct {
	problem      *models.GeneratedProblem
	generateErr  error
	lastUserID   string
	lastTaskType models.TaskType
	lastTopic    string

	session   *models.PracticeSession
	getErr    error
	lastGetID string

	sessions   []models.PracticeSession
	listErr    error
	lastLimit  int
	lastOffset int
}

func (s *stubProblemService) GenerateProblem(_ context.Context, userID string, taskType models.TaskType, topicCategory string) (*models.GeneratedProblem, error) {
	s.lastUserID = userID
	s.lastTaskType = taskType
	s.lastTopic = topicCategory
	return s.problem, s.generateErr
}

func (s *stubProblemService) GetSession(_ context.Context, sessionID string) (*models.PracticeSession, error) {
	s.lastGetID = sessionID
	return s.session, s.getErr
}

func (s *stubProblemService) ListSessions(_ context.Context, userID string, limit, offset int) ([]models.PracticeSession, error) {
	s.lastUserID = userID
	s.lastLimit = limit
	s.lastOffset = offset
	return s.sessions, s.listErr
}

type stubSpeechService struct {
	result          *models.TranscriptionResult
	err             error
	lastAudio       []byte
	lastFilename    string
	lastContentType string
	lastLanguage    string
}

func (s *stubSpeechService) TranscribeAudio(_ context.Context, audio []byte, filename, contentType, language string) (*models.TranscriptionResult, error) {
	s.lastAudio = audio
	s.lastFilename = filename
	s.lastContentType = contentType
	s.lastLanguage = language
	return s.result, s.err
}

type stubScoringService struct {
	result         *models.ScoringResult
	evalErr        error
	lastSessionID  string
	lastTranscript string

	answer    *models.ModelAnswer
	answerErr error

	review        *models.AIReview
	reviewErr     error
	savedReview   *models.AIReview
	saveReviewErr error
}

func (s *stubScoringService) EvaluateResponse(_ context.Context, sessionID, transcript string) (*models.ScoringResult, error) {
	s.lastSessionID = sessionID
	s.lastTranscript = transcript
	return s.result, s.evalErr
}

func (s *stubScoringService) GenerateModelAnswer(_ context.Context, sessionID string) (*models.ModelAnswer, error) {
	s.lastSessionID = sessionID
	return s.answer, s.answerErr
}

func (s *stubScoringService) GenerateAIReview(_ context.Context, sessionID, transcript string) (*models.AIReview, error) {
	s.lastSessionID = sessionID
	s.lastTranscript = transcript
	return s.review, s.reviewErr
}

func (s *stubScoringService) SaveAIReview(_ context.Context, sessionID string, review *models.AIReview) error {
	s.lastSessionID = sessionID
	s.savedReview = review
	return s.saveReviewErr
}

type stubPhraseService struct {
	saved        *models.SavedPhrase
	saveErr      error
	lastUserID   string
	lastPhrase   string
	lastContext  string
	lastCategory string

	phrases []models.SavedPhrase
	listErr error

	updated      *models.SavedPhrase
	updateErr    error
	lastPhraseID string
	lastMastered bool

	deleteErr error
}

func (s *stubPhraseService) SavePhrase(_ context.Context, userID, phrase, phraseContext, category string) (*models.SavedPhrase, error) {
	s.lastUserID = userID
	s.lastPhrase = phrase
	s.lastContext = phraseContext
	s.lastCategory = category
	return s.saved, s.saveErr
}

func (s *stubPhraseService) ListPhrases(_ context.Context, userID string) ([]models.SavedPhrase, error) {
	s.lastUserID = userID
	return s.phrases, s.listErr
}

func (s *stubPhraseService) UpdateMastered(_ context.Context, userID, phraseID string, mastered bool) (*models.SavedPhrase, error) {
	s.lastUserID = userID
	s.lastPhraseID = phraseID
	s.lastMastered = mastered
	return s.updated, s.updateErr
}

func (s *stubPhraseService) DeletePhrase(_ context.Context, userID, phraseID string) error {
	s.lastUserID = userID
	s.lastPhraseID = phraseID
	return s.deleteErr
}
