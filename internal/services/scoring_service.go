package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ScoringServiceInterface defines the scoring operations handlers depend on
type ScoringServiceInterface interface {
	EvaluateResponse(ctx context.Context, sessionID, transcript string) (*models.ScoringResult, error)
	GenerateModelAnswer(ctx context.Context, sessionID string) (*models.ModelAnswer, error)
	GenerateAIReview(ctx context.Context, sessionID, transcript string) (*models.AIReview, error)
	SaveAIReview(ctx context.Context, sessionID string, review *models.AIReview) error
}

// scoringSystemMessage carries the official 0-4 rubric. Feedback is written
// in Japanese; the rubric text itself doubles as the score anchor.
const scoringSystemMessage = `You are an expert TOEFL iBT Speaking rater trained in official ETS scoring rubrics.
Use the official Japanese scoring criteria for TOEFL Speaking:

0点: 全く話していない
1点: ほとんど話していない
2点: 英語の間違いが散見しつつ、テンポと構成がまずく問に答えきれていない
3点: 英語の間違いは散見しつつも、テンポと構成よく問に答えきれている
4点: 英語の表現がよく、構成も回答もよい

Evaluate responses based on three criteria: Delivery, Language Use, and Topic Development.
Each criterion is scored on a 0-4 scale, and provide an overall score based on the criteria above.`

const modelAnswerSystemMessage = `You are an expert TOEFL Speaking instructor who creates exemplary model answers.
Generate high-scoring responses that demonstrate excellent structure and language use.`

// aiReviewSystemMessage instructs the model to write personalized feedback in
// Japanese, with only the rewritten answer in English.
const aiReviewSystemMessage = `あなたはTOEFL iBT Speakingの専門講師です。学習者の回答を詳細に分析し、個別化されたフィードバックを日本語で提供してください。

以下の観点から評価してください：
1. 良い点（具体的に何ができているかを日本語で）
2. 改善点（具体的に何を改善すべきかを日本語で）
3. 具体的な改善案（学習者の回答を踏まえた個別のアドバイスを日本語で）
4. スコアアップのコツ（問題の内容も考慮した実践的なアドバイスを日本語で）
5. 改善版英語回答（学習者の回答を基にした改善版を英語で）

**重要な指示**:
- フィードバック部分（strengths、improvements、specific_suggestions、score_improvement_tips）は必ず日本語で記述してください
- 改善版回答（improved_response）のみ英語で記述してください
- フィードバックは建設的で、学習者のモチベーションを高める内容にしてください
- 学習者の実際の発言を引用して、具体的で実践的なアドバイスを提供してください`

// ScoringService evaluates spoken responses against the rubric and produces
// model answers. Both operations load the stored practice session for its
// stimulus material, call the generation service, and persist the outcome.
type ScoringService struct {
	db        *sql.DB
	client    GenerativeClient
	sanitizer *Sanitizer
	cleanup   *CleanupService
	logger    *observability.Logger
}

// NewScoringService creates a new ScoringService instance
func NewScoringService(db *sql.DB, client GenerativeClient, sanitizer *Sanitizer, cleanup *CleanupService, logger *observability.Logger) *ScoringService {
	return &ScoringService{
		db:        db,
		client:    client,
		sanitizer: sanitizer,
		cleanup:   cleanup,
		logger:    logger,
	}
}

// sessionFeedback is the shape persisted into the feedback_json column.
type sessionFeedback struct {
	DeliveryFeedback    string   `json:"delivery_feedback"`
	LanguageUseFeedback string   `json:"language_use_feedback"`
	TopicDevFeedback    string   `json:"topic_dev_feedback"`
	ImprovementTips     []string `json:"improvement_tips"`
}

// EvaluateResponse scores a transcript against the session's stimulus
// material, stores the scores and feedback on the session, and schedules
// the session's lecture audio for deletion once the result is safe.
func (s *ScoringService) EvaluateResponse(ctx context.Context, sessionID, transcript string) (result0 *models.ScoringResult, err error) {
	ctx, span := observability.TraceScoringFunction(ctx, "evaluate_response",
		observability.AttributeProblemID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(transcript) == "" {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Transcript cannot be empty",
			"",
		)
	}

	session, err := loadPracticeSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        buildScoringPrompt(session, transcript),
		SystemMessage: scoringSystemMessage,
		Temperature:   0.3,
		MaxTokens:     1000,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.sanitizer.ParseScoringResult(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err = s.storeScores(ctx, sessionID, transcript, result); err != nil {
		return nil, err
	}

	// The recording's lecture audio has served its purpose once the
	// evaluation is persisted.
	s.cleanup.CleanupSession(ctx, sessionID)

	span.SetAttributes(attribute.Int("scoring.overall", result.OverallScore))
	s.logger.Info(ctx, "Response evaluated", map[string]interface{}{
		"session_id":    sessionID,
		"overall_score": result.OverallScore,
	})

	return result, nil
}

// buildScoringPrompt assembles the rubric prompt from whatever stimulus
// material the task has. The opinion task carries only a question; the
// integrated tasks add their reading and lecture sections.
func buildScoringPrompt(session *models.PracticeSession, transcript string) string {
	var b strings.Builder
	b.WriteString("Score this TOEFL Speaking response according to the official Japanese scoring criteria.\n\n")

	if session.ReadingText.Valid && session.ReadingText.String != "" {
		b.WriteString("READING PASSAGE:\n")
		b.WriteString(session.ReadingText.String)
		b.WriteString("\n\n")
	}
	if session.LectureScript.Valid && session.LectureScript.String != "" {
		b.WriteString("LECTURE:\n")
		b.WriteString(session.LectureScript.String)
		b.WriteString("\n\n")
	}

	b.WriteString("QUESTION:\n")
	b.WriteString(session.Question)
	b.WriteString("\n\nSTUDENT RESPONSE:\n")
	b.WriteString(transcript)

	b.WriteString(`

Provide detailed scores (0-4) and feedback for:
1. Delivery: Clarity, fluency, pronunciation, pacing
2. Language Use: Grammar, vocabulary, sentence structure
3. Topic Development: Content accuracy, completeness, coherence

The overall score should reflect the holistic assessment based on the Japanese criteria in the system message.

Return ONLY valid JSON with this structure:
{
  "delivery_score": <0-4>,
  "delivery_feedback": "<detailed feedback in Japanese>",
  "language_use_score": <0-4>,
  "language_use_feedback": "<detailed feedback in Japanese>",
  "topic_dev_score": <0-4>,
  "topic_dev_feedback": "<detailed feedback in Japanese>",
  "overall_score": <0-4>,
  "improvement_tips": ["<tip1 in Japanese>", "<tip2 in Japanese>", "<tip3 in Japanese>"]
}`)

	return b.String()
}

// storeScores persists the transcript, the four scores and the feedback
// payload on the practice session row.
func (s *ScoringService) storeScores(ctx context.Context, sessionID, transcript string, result *models.ScoringResult) error {
	feedback, err := json.Marshal(sessionFeedback{
		DeliveryFeedback:    result.Delivery.Feedback,
		LanguageUseFeedback: result.LanguageUse.Feedback,
		TopicDevFeedback:    result.TopicDevelopment.Feedback,
		ImprovementTips:     result.ImprovementTips,
	})
	if err != nil {
		return contextutils.WrapError(err, "failed to encode feedback")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE practice_sessions
		SET user_transcript = $1,
		    overall_score = $2,
		    delivery_score = $3,
		    language_use_score = $4,
		    topic_dev_score = $5,
		    feedback_json = $6
		WHERE id = $7
	`, transcript, result.OverallScore, result.Delivery.Score, result.LanguageUse.Score,
		result.TopicDevelopment.Score, string(feedback), sessionID)
	if err != nil {
		s.logger.Error(ctx, "Failed to store scoring result", err, map[string]interface{}{
			"session_id": sessionID,
		})
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to store scoring result",
			fmt.Sprintf("session_id: %s", sessionID),
			err,
		)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Practice session not found",
			fmt.Sprintf("session_id: %s", sessionID),
		)
	}
	return nil
}

// GenerateModelAnswer produces a high-scoring sample response for the
// session's question and stores it on the session.
func (s *ScoringService) GenerateModelAnswer(ctx context.Context, sessionID string) (result0 *models.ModelAnswer, err error) {
	ctx, span := observability.TraceScoringFunction(ctx, "generate_model_answer",
		observability.AttributeProblemID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	session, err := loadPracticeSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        buildModelAnswerPrompt(session),
		SystemMessage: modelAnswerSystemMessage,
		Temperature:   0.7,
		MaxTokens:     800,
	})
	if err != nil {
		return nil, err
	}

	answer, err := s.sanitizer.ParseModelAnswer(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err = s.storeModelAnswer(ctx, sessionID, answer.ModelAnswer); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Model answer generated", map[string]interface{}{
		"session_id": sessionID,
		"phrases":    len(answer.HighlightedPhrases),
	})

	return answer, nil
}

// buildModelAnswerPrompt assembles the model answer prompt. The target
// length follows the task's speaking time.
func buildModelAnswerPrompt(session *models.PracticeSession) string {
	var b strings.Builder
	b.WriteString("Create a model answer for this TOEFL Speaking question.\n\n")

	if session.ReadingText.Valid && session.ReadingText.String != "" {
		b.WriteString("READING PASSAGE:\n")
		b.WriteString(session.ReadingText.String)
		b.WriteString("\n\n")
	}
	if session.LectureScript.Valid && session.LectureScript.String != "" {
		b.WriteString("LECTURE:\n")
		b.WriteString(session.LectureScript.String)
		b.WriteString("\n\n")
	}

	b.WriteString("QUESTION:\n")
	b.WriteString(session.Question)

	length := "60 seconds speaking time, ~150-180 words"
	if session.TaskType == models.TaskTypeIndependent {
		length = "45 seconds speaking time, ~130-150 words"
	}

	b.WriteString(fmt.Sprintf(`

Generate:
1. A complete, well-structured model answer (%s)
2. Identify key phrases that demonstrate good structure (transitions, examples, conclusions)
3. Mark phrases that are also useful for TOEFL Writing

Return ONLY valid JSON with this structure:
{
  "model_answer": "<complete answer text>",
  "highlighted_phrases": [
    {
      "text": "<phrase>",
      "category": "<transition|example|conclusion>",
      "useful_for_writing": <true|false>
    }
  ]
}`, length))

	return b.String()
}

// GenerateAIReview produces personalized feedback on a transcript: strengths,
// weaknesses, concrete suggestions, and a rewritten English answer. Unlike
// evaluation it persists nothing; the client saves it explicitly.
func (s *ScoringService) GenerateAIReview(ctx context.Context, sessionID, transcript string) (result0 *models.AIReview, err error) {
	ctx, span := observability.TraceScoringFunction(ctx, "generate_ai_review",
		observability.AttributeProblemID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(transcript) == "" {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Transcript cannot be empty",
			"",
		)
	}

	session, err := loadPracticeSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Complete(ctx, CompletionRequest{
		Prompt:        buildAIReviewPrompt(session, transcript),
		SystemMessage: aiReviewSystemMessage,
		Temperature:   0.7,
		MaxTokens:     1200,
	})
	if err != nil {
		return nil, err
	}

	review, err := s.sanitizer.ParseAIReview(ctx, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "AI review generated", map[string]interface{}{
		"session_id":   sessionID,
		"strengths":    len(review.Strengths),
		"improvements": len(review.Improvements),
	})

	return review, nil
}

// buildAIReviewPrompt assembles the review prompt from the session's
// stimulus material and the learner's transcript.
func buildAIReviewPrompt(session *models.PracticeSession, transcript string) string {
	var sections []string

	if session.ReadingText.Valid && session.ReadingText.String != "" {
		sections = append(sections, "リーディング: "+session.ReadingText.String)
	}
	if session.LectureScript.Valid && session.LectureScript.String != "" {
		sections = append(sections, "講義: "+session.LectureScript.String)
	}
	sections = append(sections, "質問: "+session.Question)

	return fmt.Sprintf(`以下のTOEFL Speaking %sの問題に対する学習者の回答を分析し、個別化されたフィードバックを日本語で提供してください。

【問題内容】
%s

【学習者の回答】
%s

【分析要求】
1. この学習者の回答の良い点を具体的に日本語で指摘してください
2. 改善が必要な点を具体的に日本語で指摘してください
3. この学習者の回答内容を踏まえた具体的な改善案を日本語で提示してください
4. この問題の内容を考慮したスコアアップのコツを日本語で提供してください
5. 学習者の回答を基にした改善版の英語回答を作成してください

**重要**: strengths、improvements、specific_suggestions、score_improvement_tipsは必ず日本語で記述してください。improved_responseのみ英語で記述してください。

以下のJSON形式で回答してください：

{
  "strengths": ["良い点1（日本語）", "良い点2（日本語）"],
  "improvements": ["改善点1（日本語）", "改善点2（日本語）"],
  "specific_suggestions": "<学習者の回答を踏まえた具体的な改善案（日本語）>",
  "score_improvement_tips": "<実践的なスコアアップのコツ（日本語）>",
  "improved_response": "<改善版の英語回答。45-60秒で話せる長さ（約130-180語）>"
}`, strings.ToUpper(string(session.TaskType)), strings.Join(sections, "\n\n"), transcript)
}

// SaveAIReview merges the review into the session's feedback_json column
// under an ai_review key, preserving the scoring feedback already there.
func (s *ScoringService) SaveAIReview(ctx context.Context, sessionID string, review *models.AIReview) (err error) {
	ctx, span := observability.TraceScoringFunction(ctx, "save_ai_review",
		observability.AttributeProblemID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	if review == nil {
		return contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Review payload is required",
			"",
		)
	}

	session, err := loadPracticeSession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}

	feedback := map[string]interface{}{}
	if session.FeedbackJSON.Valid && session.FeedbackJSON.String != "" {
		if err := json.Unmarshal([]byte(session.FeedbackJSON.String), &feedback); err != nil {
			s.logger.Warn(ctx, "Replacing unparseable feedback payload", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			feedback = map[string]interface{}{}
		}
	}
	feedback["ai_review"] = review

	encoded, err := json.Marshal(feedback)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode feedback")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE practice_sessions
		SET feedback_json = $1
		WHERE id = $2
	`, string(encoded), sessionID)
	if err != nil {
		s.logger.Error(ctx, "Failed to save AI review", err, map[string]interface{}{
			"session_id": sessionID,
		})
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to save AI review",
			fmt.Sprintf("session_id: %s", sessionID),
			err,
		)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Practice session not found",
			fmt.Sprintf("session_id: %s", sessionID),
		)
	}

	s.logger.Info(ctx, "AI review saved", map[string]interface{}{"session_id": sessionID})
	return nil
}

// storeModelAnswer persists the model answer text on the session row.
func (s *ScoringService) storeModelAnswer(ctx context.Context, sessionID, modelAnswer string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE practice_sessions
		SET model_answer = $1
		WHERE id = $2
	`, modelAnswer, sessionID)
	if err != nil {
		s.logger.Error(ctx, "Failed to store model answer", err, map[string]interface{}{
			"session_id": sessionID,
		})
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeDatabaseQuery,
			contextutils.SeverityError,
			"Failed to store model answer",
			fmt.Sprintf("session_id: %s", sessionID),
			err,
		)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contextutils.NewAppError(
			contextutils.ErrorCodeRecordNotFound,
			contextutils.SeverityWarn,
			"Practice session not found",
			fmt.Sprintf("session_id: %s", sessionID),
		)
	}
	return nil
}
