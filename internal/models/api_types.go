package models

import "time"

// GeneratedProblem is the payload returned to the client after a problem is
// generated and persisted as a PracticeSession.
type GeneratedProblem struct {
	ProblemID       string   `json:"problem_id"`
	TaskType        TaskType `json:"task_type"`
	TopicCategory   string   `json:"topic_category,omitempty"`
	ReadingText     string   `json:"reading_text,omitempty"`
	LectureScript   string   `json:"lecture_script,omitempty"`
	LectureAudioURL string   `json:"lecture_audio_url,omitempty"`
	Question        string   `json:"question"`
	PreparationSec  int      `json:"preparation_time"`
	SpeakingSec     int      `json:"speaking_time"`
}

// ScoringDetail holds the score and feedback for one evaluation criterion.
type ScoringDetail struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// ScoringResult is a complete evaluation across the three criteria.
// All scores are integers in [0, 4].
type ScoringResult struct {
	OverallScore     int           `json:"overall_score"`
	Delivery         ScoringDetail `json:"delivery"`
	LanguageUse      ScoringDetail `json:"language_use"`
	TopicDevelopment ScoringDetail `json:"topic_development"`
	ImprovementTips  []string      `json:"improvement_tips"`
}

// HighlightedPhrase is a reusable phrase highlighted inside a model answer.
// Category is one of "transition", "example" or "conclusion".
type HighlightedPhrase struct {
	Text             string `json:"text"`
	Category         string `json:"category"`
	UsefulForWriting bool   `json:"useful_for_writing"`
}

// ModelAnswer is a model answer with its highlighted phrases.
type ModelAnswer struct {
	ModelAnswer        string              `json:"model_answer"`
	HighlightedPhrases []HighlightedPhrase `json:"highlighted_phrases"`
}

// AIReview is personalized feedback on one response. The feedback fields are
// Japanese; ImprovedResponse is a rewritten English answer.
type AIReview struct {
	Strengths            []string `json:"strengths"`
	Improvements         []string `json:"improvements"`
	SpecificSuggestions  string   `json:"specific_suggestions"`
	ScoreImprovementTips string   `json:"score_improvement_tips"`
	ImprovedResponse     string   `json:"improved_response"`
}

// TranscriptionResult is the outcome of transcribing an uploaded recording.
type TranscriptionResult struct {
	Transcript string `json:"transcript"`
}

// LoginRequest identifies a learner by a stable identifier string.
type LoginRequest struct {
	UserIdentifier string `json:"user_identifier" binding:"required"`
}

// LoginResponse carries the bearer token issued for the session.
type LoginResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
