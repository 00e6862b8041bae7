// Package models defines data structures used throughout the speaking practice application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// TaskType identifies the exam task a practice session belongs to.
type TaskType string

const (
	// TaskTypeIndependent is the independent speaking task (opinion prompt only)
	TaskTypeIndependent TaskType = "task1"
	// TaskTypeCampus is the campus situation task (reading + conversation)
	TaskTypeCampus TaskType = "task2"
	// TaskTypeAcademic is the academic reading + lecture task
	TaskTypeAcademic TaskType = "task3"
	// TaskTypeLecture is the lecture summary task (lecture only)
	TaskTypeLecture TaskType = "task4"
)

// Valid reports whether the task type is one of the four exam tasks.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeIndependent, TaskTypeCampus, TaskTypeAcademic, TaskTypeLecture:
		return true
	}
	return false
}

// User represents a learner account. IDs are CHAR(36) UUID strings and are
// stored exactly as supplied, never reformatted.
type User struct {
	ID             string    `json:"id" yaml:"id"`
	UserIdentifier string    `json:"user_identifier" yaml:"user_identifier"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

// SessionToken represents a bearer session issued at login. Only the bcrypt
// hash is persisted; the raw token is returned to the client once.
type SessionToken struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	TokenHash string    `json:"-" yaml:"-"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// IsExpired reports whether the session token has passed its expiry.
func (s *SessionToken) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PracticeSession represents one generated problem and, once scored, the
// learner's answer and feedback.
type PracticeSession struct {
	ID              string         `json:"id" yaml:"id"`
	UserID          sql.NullString `json:"user_id" yaml:"user_id"`
	TaskType        TaskType       `json:"task_type" yaml:"task_type"`
	ReadingText     sql.NullString `json:"reading_text" yaml:"reading_text"`
	LectureScript   sql.NullString `json:"lecture_script" yaml:"lecture_script"`
	LectureAudioURL sql.NullString `json:"lecture_audio_url" yaml:"lecture_audio_url"`
	Question        string         `json:"question" yaml:"question"`
	UserTranscript  sql.NullString `json:"user_transcript" yaml:"user_transcript"`
	OverallScore    sql.NullInt32  `json:"overall_score" yaml:"overall_score"`
	DeliveryScore   sql.NullInt32  `json:"delivery_score" yaml:"delivery_score"`
	LanguageScore   sql.NullInt32  `json:"language_use_score" yaml:"language_use_score"`
	TopicDevScore   sql.NullInt32  `json:"topic_dev_score" yaml:"topic_dev_score"`
	FeedbackJSON    sql.NullString `json:"feedback_json" yaml:"feedback_json"`
	ModelAnswer     sql.NullString `json:"model_answer" yaml:"model_answer"`
	CreatedAt       time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for PracticeSession to render the
// sql.Null* wrappers as plain values or null.
func (p PracticeSession) MarshalJSON() (result0 []byte, err error) {
	var feedback interface{}
	if p.FeedbackJSON.Valid && p.FeedbackJSON.String != "" {
		if err := json.Unmarshal([]byte(p.FeedbackJSON.String), &feedback); err != nil {
			feedback = p.FeedbackJSON.String
		}
	}

	return json.Marshal(&struct {
		ID              string      `json:"id"`
		UserID          *string     `json:"user_id"`
		TaskType        TaskType    `json:"task_type"`
		ReadingText     *string     `json:"reading_text"`
		LectureScript   *string     `json:"lecture_script"`
		LectureAudioURL *string     `json:"lecture_audio_url"`
		Question        string      `json:"question"`
		UserTranscript  *string     `json:"user_transcript"`
		OverallScore    *int32      `json:"overall_score"`
		DeliveryScore   *int32      `json:"delivery_score"`
		LanguageScore   *int32      `json:"language_use_score"`
		TopicDevScore   *int32      `json:"topic_dev_score"`
		Feedback        interface{} `json:"feedback"`
		ModelAnswer     *string     `json:"model_answer"`
		CreatedAt       time.Time   `json:"created_at"`
	}{
		ID:              p.ID,
		UserID:          nullStringToPointer(p.UserID),
		TaskType:        p.TaskType,
		ReadingText:     nullStringToPointer(p.ReadingText),
		LectureScript:   nullStringToPointer(p.LectureScript),
		LectureAudioURL: nullStringToPointer(p.LectureAudioURL),
		Question:        p.Question,
		UserTranscript:  nullStringToPointer(p.UserTranscript),
		OverallScore:    nullInt32ToPointer(p.OverallScore),
		DeliveryScore:   nullInt32ToPointer(p.DeliveryScore),
		LanguageScore:   nullInt32ToPointer(p.LanguageScore),
		TopicDevScore:   nullInt32ToPointer(p.TopicDevScore),
		Feedback:        feedback,
		ModelAnswer:     nullStringToPointer(p.ModelAnswer),
		CreatedAt:       p.CreatedAt,
	})
}

// SavedPhrase represents a phrase the learner saved for review.
type SavedPhrase struct {
	ID         string         `json:"id" yaml:"id"`
	UserID     string         `json:"user_id" yaml:"user_id"`
	Phrase     string         `json:"phrase" yaml:"phrase"`
	Context    sql.NullString `json:"context" yaml:"context"`
	Category   sql.NullString `json:"category" yaml:"category"`
	IsMastered bool           `json:"is_mastered" yaml:"is_mastered"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for SavedPhrase.
func (s SavedPhrase) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         string    `json:"id"`
		UserID     string    `json:"user_id"`
		Phrase     string    `json:"phrase"`
		Context    *string   `json:"context"`
		Category   *string   `json:"category"`
		IsMastered bool      `json:"is_mastered"`
		CreatedAt  time.Time `json:"created_at"`
	}{
		ID:         s.ID,
		UserID:     s.UserID,
		Phrase:     s.Phrase,
		Context:    nullStringToPointer(s.Context),
		Category:   nullStringToPointer(s.Category),
		IsMastered: s.IsMastered,
		CreatedAt:  s.CreatedAt,
	})
}

func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullInt32ToPointer(ni sql.NullInt32) *int32 {
	if ni.Valid {
		return &ni.Int32
	}
	return nil
}
