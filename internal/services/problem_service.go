package services

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"speakapp/internal/config"
	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProblemServiceInterface defines the problem operations handlers depend on
type ProblemServiceInterface interface {
	GenerateProblem(ctx context.Context, userID string, taskType models.TaskType, topicCategory string) (*models.GeneratedProblem, error)
	GetSession(ctx context.Context, sessionID string) (*models.PracticeSession, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]models.PracticeSession, error)
}

// defaultTopicCategories are the academic topics lecture problems draw from
// when the configuration does not supply its own list.
var defaultTopicCategories = []string{
	"psychology",
	"biology",
	"economics",
	"sociology",
	"environmental_science",
	"education",
	"anthropology",
	"business",
	"history",
	"linguistics",
}

// conversationTTSSpeed is used for the longer conversation and lecture
// scripts of the campus and lecture tasks. Reading at roughly 2.2 words per
// second keeps a 200 word script near the 90 second mark.
const conversationTTSSpeed = 0.85

// historyFetchLimit caps how many prior questions are loaded per user and
// task; only the most recent HistoryWindow of them reach the prompt.
const historyFetchLimit = 20

// ProblemService generates practice problems, synthesizes lecture audio and
// persists each generated problem as a practice session row.
type ProblemService struct {
	db        *sql.DB
	client    GenerativeClient
	sanitizer *Sanitizer
	cleanup   *CleanupService
	cfg       *config.Config
	logger    *observability.Logger
}

// NewProblemService creates a new ProblemService instance
func NewProblemService(db *sql.DB, client GenerativeClient, sanitizer *Sanitizer, cleanup *CleanupService, cfg *config.Config, logger *observability.Logger) *ProblemService {
	return &ProblemService{
		db:        db,
		client:    client,
		sanitizer: sanitizer,
		cleanup:   cleanup,
		cfg:       cfg,
		logger:    logger,
	}
}

// taskTiming returns the preparation and speaking durations in seconds.
func taskTiming(taskType models.TaskType) (int, int) {
	if taskType == models.TaskTypeIndependent {
		return 15, 45
	}
	return 30, 60
}

// GenerateProblem generates a problem for the given task, synthesizes lecture
// audio when the task has a spoken part, and stores the result. A userID may
// be empty for anonymous practice; it is then not linked to any account and
// no question history is consulted.
func (s *ProblemService) GenerateProblem(ctx context.Context, userID string, taskType models.TaskType, topicCategory string) (result0 *models.GeneratedProblem, err error) {
	ctx, span := observability.TraceProblemFunction(ctx, "generate_problem",
		attribute.String("task.type", string(taskType)),
	)
	defer observability.FinishSpan(span, &err)

	if !taskType.Valid() {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid task type",
			fmt.Sprintf("task_type: %s", taskType),
		)
	}

	previous := s.previousQuestions(ctx, userID, taskType)

	var problem *models.GeneratedProblem
	switch taskType {
	case models.TaskTypeIndependent:
		problem, err = s.generateIndependent(ctx, previous)
	case models.TaskTypeCampus:
		problem, err = s.generateCampus(ctx, previous)
	case models.TaskTypeAcademic:
		problem, err = s.generateAcademic(ctx, topicCategory, previous)
	case models.TaskTypeLecture:
		problem, err = s.generateLecture(ctx, previous)
	}
	if err != nil {
		return nil, err
	}

	problem.ProblemID = uuid.NewString()
	problem.TaskType = taskType
	problem.PreparationSec, problem.SpeakingSec = taskTiming(taskType)

	if problem.LectureScript != "" {
		speed := s.cfg.OpenAI.TTSSpeed
		if taskType != models.TaskTypeAcademic {
			speed = conversationTTSSpeed
		}
		if audioURL, ttsErr := s.synthesizeLectureAudio(ctx, problem.ProblemID, problem.LectureScript, speed); ttsErr != nil {
			// The problem is still usable without audio; the client falls
			// back to showing the script.
			s.logger.Warn(ctx, "Lecture audio synthesis failed, continuing without audio", map[string]interface{}{
				"problem_id": problem.ProblemID,
				"error":      ttsErr.Error(),
			})
		} else {
			problem.LectureAudioURL = audioURL
		}
	}

	if err = s.storeSession(ctx, userID, problem); err != nil {
		return nil, err
	}

	span.SetAttributes(observability.AttributeProblemID(problem.ProblemID))
	s.logger.Info(ctx, "Generated problem", map[string]interface{}{
		"problem_id": problem.ProblemID,
		"task_type":  string(taskType),
		"has_audio":  problem.LectureAudioURL != "",
	})

	return problem, nil
}

// generateIndependent creates an opinion question with no stimulus material.
func (s *ProblemService) generateIndependent(ctx context.Context, previous []string) (*models.GeneratedProblem, error) {
	systemMessage := "You are an expert TOEFL iBT test creator specializing in Task 1 (Independent Speaking) questions.\n" +
		"Generate authentic questions that match official TOEFL standards and encourage personal responses."

	prompt := fmt.Sprintf(`Create a TOEFL Speaking Task 1 (Independent) question.

%s

Requirements:
- 20-30 words in length
- Ask about personal experiences, opinions, or preferences
- Be clear and specific
- Allow for detailed personal response
- Follow official TOEFL Task 1 format
- Must be significantly different from any previously used questions

Examples of good Task 1 questions:
- "Describe a piece of news you have received that made you happy. Why did it make you happy?"
- "Talk about a skill you would like to learn. Explain why this skill would be good for you to have."
- "Describe a place you have never visited but would like to go to someday. Explain why you want to visit this place."

Return ONLY valid JSON with this structure:
{
  "question": "<your generated question>"
}`, previousQuestionsContext(previous))

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        prompt,
		SystemMessage: systemMessage,
		Temperature:   0.8,
		MaxTokens:     200,
	})
	if err != nil {
		return nil, err
	}

	fields, err := s.sanitizer.ExtractFields(ctx, raw, []string{"question"})
	if err != nil {
		return nil, err
	}

	if words := len(strings.Fields(fields["question"])); words < 15 || words > 40 {
		s.logger.Warn(ctx, "Question length outside optimal range", map[string]interface{}{
			"word_count": words,
		})
	}

	return &models.GeneratedProblem{Question: fields["question"]}, nil
}

// generateCampus creates a university announcement plus a two-student
// conversation about it. The announcement plays the reading role and the
// conversation the lecture role.
func (s *ProblemService) generateCampus(ctx context.Context, previous []string) (*models.GeneratedProblem, error) {
	systemMessage := "You are an expert TOEFL iBT test creator specializing in Task 2 (Integrated Speaking) questions.\n" +
		"Generate authentic campus-related content that matches official TOEFL standards."

	prompt := fmt.Sprintf(`Create a TOEFL Speaking Task 2 (Integrated) problem following this exact format:

%s

1. University Announcement: Generate an official announcement from university administration, dormitory office, library, dining services, or other campus facilities to students (approximately 100 words). This should be a formal notice about policy changes, facility updates, service modifications, schedule changes, or new campus initiatives.

2. Student Conversation: Generate a conversation between two university students who have read the announcement. Each student should express their opinion about the announcement with clear reasons. The conversation should be natural and show different perspectives.

3. Question: Create a question asking students to summarize both students' opinions and their reasons (20-30 words). The question should ask for a summary of what each student thinks and why.

Requirements:
- Announcement must be from university administration or campus facilities (library, dining, housing, etc.)
- Announcement should include specific details about what's changing and why
- Students should have contrasting opinions with clear, logical reasoning
- Conversation should sound like natural campus dialogue between friends/classmates
- Each student should give at least 2 reasons for their opinion
- Question should specifically ask for BOTH students' opinions AND their reasons
- Speaking speed for audio: 2.2-2.4 words per second (approximately 130-150 words for 60 seconds)

Return ONLY valid JSON with this exact structure. Do not include any text before or after the JSON:

{
  "announcement_text": "Write the formal university announcement here as one continuous string without line breaks",
  "conversation_script": "Write the student conversation here as one continuous string without line breaks",
  "question": "Write the question here as one continuous string"
}

CRITICAL JSON REQUIREMENTS:
- Must be valid JSON syntax with proper commas and quotes
- No line breaks within string values
- Use double quotes only
- Include comma after each field except the last
- No additional text outside the JSON object`, previousQuestionsContext(previous))

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        prompt,
		SystemMessage: systemMessage,
		Temperature:   0.3,
		MaxTokens:     1000,
	})
	if err != nil {
		return nil, err
	}

	fields, err := s.sanitizer.ExtractFields(ctx, raw, []string{"announcement_text", "conversation_script", "question"})
	if err != nil {
		return nil, err
	}

	return &models.GeneratedProblem{
		TopicCategory: "campus_announcement",
		ReadingText:   fields["announcement_text"],
		LectureScript: fields["conversation_script"],
		Question:      fields["question"],
	}, nil
}

// generateAcademic creates a reading passage, a lecture expanding on it, and
// a question tying the two together. An unknown or empty topic falls back to
// a random one.
func (s *ProblemService) generateAcademic(ctx context.Context, topicCategory string, previous []string) (*models.GeneratedProblem, error) {
	topics := s.cfg.Problems.TopicCategories
	if len(topics) == 0 {
		topics = defaultTopicCategories
	}
	if topicCategory == "" || !containsTopic(topics, topicCategory) {
		if topicCategory != "" {
			s.logger.Warn(ctx, "Unknown topic category, selecting random", map[string]interface{}{
				"topic_category": topicCategory,
			})
		}
		topicCategory = topics[rand.Intn(len(topics))]
	}

	systemMessage := "You are an expert TOEFL iBT test creator specializing in Task 3 (Academic Integrated) questions.\n" +
		"Generate authentic, academic-level content that matches official TOEFL standards."

	prompt := fmt.Sprintf(`Create a complete TOEFL Speaking Task 3 problem on the topic of %s.

%s

Provide the following in JSON format:
1. reading_text: A 75-100 word academic passage introducing a concept (suitable for 45 seconds of reading)
2. lecture_script: A 150-200 word lecture that provides examples or applications of the concept (suitable for 60-90 seconds)
3. question: A clear question asking the student to explain the concept and how the examples relate to it

The content should be:
- Academic and formal in tone
- Clear and well-structured
- Appropriate for advanced English learners
- Focused on a specific concept with concrete examples

Return ONLY valid JSON with these three keys.`, topicCategory, previousQuestionsContext(previous))

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        prompt,
		SystemMessage: systemMessage,
		Temperature:   0.8,
		MaxTokens:     800,
	})
	if err != nil {
		return nil, err
	}

	fields, err := s.sanitizer.ExtractFields(ctx, raw, []string{"reading_text", "lecture_script", "question"})
	if err != nil {
		return nil, err
	}

	return &models.GeneratedProblem{
		TopicCategory: topicCategory,
		ReadingText:   fields["reading_text"],
		LectureScript: fields["lecture_script"],
		Question:      fields["question"],
	}, nil
}

// generateLecture creates a standalone academic lecture and a summary
// question. There is no reading passage for this task.
func (s *ProblemService) generateLecture(ctx context.Context, previous []string) (*models.GeneratedProblem, error) {
	systemMessage := "You are an expert TOEFL iBT test creator specializing in Task 4 (Academic Lecture) questions.\n" +
		"Generate authentic academic lecture content that matches official TOEFL standards."

	prompt := fmt.Sprintf(`Create a TOEFL Speaking Task 4 (Academic Lecture) problem following this exact format:

%s

1. Academic Lecture: Generate an academic lecture on any subject (psychology, biology, economics, history, etc.) approximately 200 words. The lecture should present a clear academic concept with examples, explanations, or applications.

2. Question: Create a question asking students to summarize the lecture content with reasons/examples (20-30 words). The question should ask for a summary of the main points and supporting details.

Requirements:
- Lecture must be academic and formal in tone
- Content should be suitable for university-level students
- Include specific examples, explanations, or applications of concepts
- Speaking speed for audio: 2.2-2.4 words per second (approximately 200 words for 90 seconds)
- Question should ask for summary with reasons/examples/details

Return ONLY valid JSON with this exact structure. Do not include any text before or after the JSON:

{
  "lecture_script": "Write the academic lecture here as one continuous string without line breaks",
  "question": "Write the question here as one continuous string"
}

CRITICAL JSON REQUIREMENTS:
- Must be valid JSON syntax with proper commas and quotes
- No line breaks within string values
- Use double quotes only
- Include comma after each field except the last
- No additional text outside the JSON object`, previousQuestionsContext(previous))

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        prompt,
		SystemMessage: systemMessage,
		Temperature:   0.3,
		MaxTokens:     1000,
	})
	if err != nil {
		return nil, err
	}

	fields, err := s.sanitizer.ExtractFields(ctx, raw, []string{"lecture_script", "question"})
	if err != nil {
		return nil, err
	}

	return &models.GeneratedProblem{
		TopicCategory: "academic_lecture",
		LectureScript: fields["lecture_script"],
		Question:      fields["question"],
	}, nil
}

// previousQuestionsContext renders the avoid-repeats section of a generation
// prompt. Returns an empty string when there is no history.
func previousQuestionsContext(previous []string) string {
	if len(previous) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("IMPORTANT: Avoid generating content similar to these previously used questions:\n")
	for _, q := range previous {
		b.WriteString("- ")
		b.WriteString(q)
		b.WriteString("\n")
	}
	b.WriteString("\nMake sure your new question is distinctly different in topic, focus, and wording.\n")
	return b.String()
}

// previousQuestions loads the user's most recent questions for the task so
// the prompt can steer away from repeats. History lookup is best effort;
// failures degrade to an empty history rather than failing generation.
func (s *ProblemService) previousQuestions(ctx context.Context, userID string, taskType models.TaskType) []string {
	if userID == "" {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT question
		FROM practice_sessions
		WHERE user_id = $1 AND task_type = $2 AND question <> ''
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, string(taskType), historyFetchLimit)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load question history", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	defer rows.Close()

	var questions []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			continue
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn(ctx, "Question history scan stopped early", map[string]interface{}{
			"error": err.Error(),
		})
	}

	window := s.cfg.Problems.HistoryWindow
	if window > 0 && len(questions) > window {
		questions = questions[:window]
	}
	return questions
}

// synthesizeLectureAudio renders the script to speech and writes the mp3
// artifact next to the other session audio so the cleanup sweep finds it.
func (s *ProblemService) synthesizeLectureAudio(ctx context.Context, problemID, script string, speed float64) (result0 string, err error) {
	ctx, span := observability.TraceProblemFunction(ctx, "synthesize_lecture_audio",
		observability.AttributeProblemID(problemID),
	)
	defer observability.FinishSpan(span, &err)

	audio, err := s.client.Synthesize(ctx, script, s.cfg.OpenAI.TTSVoice, speed)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.cleanup.AudioDir(), 0o755); err != nil {
		return "", contextutils.WrapError(err, "failed to create audio directory")
	}

	path := s.cleanup.ArtifactPath(problemID)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", contextutils.WrapError(err, "failed to write audio artifact")
	}

	s.logger.Info(ctx, "Saved lecture audio", map[string]interface{}{
		"problem_id": problemID,
		"path":       path,
		"bytes":      len(audio),
	})

	return "/audio/" + filepath.Base(path), nil
}

// storeSession persists the generated problem as a practice session row.
func (s *ProblemService) storeSession(ctx context.Context, userID string, problem *models.GeneratedProblem) error {
	var user sql.NullString
	if userID != "" {
		user = sql.NullString{String: userID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO practice_sessions (id, user_id, task_type, reading_text, lecture_script, lecture_audio_url, question, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, problem.ProblemID, user, string(problem.TaskType),
		nullable(problem.ReadingText), nullable(problem.LectureScript), nullable(problem.LectureAudioURL),
		problem.Question, time.Now())
	if err != nil {
		s.logger.Error(ctx, "Failed to store practice session", err, map[string]interface{}{
			"problem_id": problem.ProblemID,
		})
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to store practice session",
			fmt.Sprintf("problem_id: %s", problem.ProblemID),
			err,
		)
	}
	return nil
}

// GetSession loads a practice session by ID.
func (s *ProblemService) GetSession(ctx context.Context, sessionID string) (result0 *models.PracticeSession, err error) {
	ctx, span := observability.TraceProblemFunction(ctx, "get_session",
		observability.AttributeProblemID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	session, err := loadPracticeSession(ctx, s.db, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, "failed to load practice session")
		return nil, err
	}
	return session, nil
}

// loadPracticeSession fetches one practice session row by ID. Shared by the
// problem and scoring services.
func loadPracticeSession(ctx context.Context, db *sql.DB, sessionID string) (*models.PracticeSession, error) {
	var session models.PracticeSession
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, task_type, reading_text, lecture_script, lecture_audio_url, question,
		       user_transcript, overall_score, delivery_score, language_use_score, topic_dev_score,
		       feedback_json, model_answer, created_at
		FROM practice_sessions
		WHERE id = $1
	`, sessionID).Scan(
		&session.ID, &session.UserID, &session.TaskType, &session.ReadingText, &session.LectureScript,
		&session.LectureAudioURL, &session.Question, &session.UserTranscript, &session.OverallScore,
		&session.DeliveryScore, &session.LanguageScore, &session.TopicDevScore,
		&session.FeedbackJSON, &session.ModelAnswer, &session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Practice session not found",
			fmt.Sprintf("session_id: %s", sessionID),
		)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load practice session")
	}
	return &session, nil
}

// ListSessions returns a user's practice sessions, newest first.
func (s *ProblemService) ListSessions(ctx context.Context, userID string, limit, offset int) (result0 []models.PracticeSession, err error) {
	ctx, span := observability.TraceProblemFunction(ctx, "list_sessions",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, task_type, reading_text, lecture_script, lecture_audio_url, question,
		       user_transcript, overall_score, delivery_score, language_use_score, topic_dev_score,
		       feedback_json, model_answer, created_at
		FROM practice_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list practice sessions")
	}
	defer rows.Close()

	sessions := make([]models.PracticeSession, 0, limit)
	for rows.Next() {
		var session models.PracticeSession
		if err := rows.Scan(
			&session.ID, &session.UserID, &session.TaskType, &session.ReadingText, &session.LectureScript,
			&session.LectureAudioURL, &session.Question, &session.UserTranscript, &session.OverallScore,
			&session.DeliveryScore, &session.LanguageScore, &session.TopicDevScore,
			&session.FeedbackJSON, &session.ModelAnswer, &session.CreatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan practice session")
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list practice sessions")
	}

	return sessions, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func containsTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
