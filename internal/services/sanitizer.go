package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"speakapp/internal/models"
	"speakapp/internal/observability"
	contextutils "speakapp/internal/utils"
)

// Sanitizer turns free-form generative text into validated structured
// records. The model wraps JSON in markdown fences, prepends commentary,
// or emits control characters often enough that every consumer goes
// through the same extraction pipeline.
type Sanitizer struct {
	logger *observability.Logger
}

// NewSanitizer creates a sanitizer
func NewSanitizer(logger *observability.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

// CleanJSON extracts the JSON object embedded in raw model output.
// Steps, in order: trim whitespace, unwrap markdown code fences, strip
// control characters except newline/carriage-return/tab, then slice from
// the first '{' to the last '}' when extra prose surrounds the object.
func (s *Sanitizer) CleanJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if idx := strings.Index(cleaned, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(cleaned[start:], "```"); end != -1 {
			cleaned = strings.TrimSpace(cleaned[start : start+end])
		}
	}

	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) > 2 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	cleaned = b.String()

	if !strings.HasPrefix(cleaned, "{") {
		if idx := strings.Index(cleaned, "{"); idx != -1 {
			cleaned = cleaned[idx:]
		}
	}
	if !strings.HasSuffix(cleaned, "}") {
		if idx := strings.LastIndex(cleaned, "}"); idx != -1 {
			cleaned = cleaned[:idx+1]
		}
	}

	return cleaned
}

// ExtractObject cleans raw model output and parses it as a JSON object.
// The raw text is logged for diagnostics but never placed in the returned
// error, so it cannot leak to a client.
func (s *Sanitizer) ExtractObject(ctx context.Context, raw string) (map[string]interface{}, error) {
	cleaned := s.CleanJSON(raw)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		s.logger.Error(ctx, "Generated text is not a valid JSON object", err, map[string]interface{}{
			"raw_text": raw,
		})
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeGenerationFormat,
			contextutils.SeverityError,
			"generated response is not a valid JSON object",
			"",
			err,
		)
	}
	return data, nil
}

// ExtractFields cleans raw model output and returns the named string
// fields. Every required field must be present and non-empty.
func (s *Sanitizer) ExtractFields(ctx context.Context, raw string, required []string) (map[string]string, error) {
	data, err := s.ExtractObject(ctx, raw)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(required))
	for _, name := range required {
		value, ok := data[name].(string)
		if !ok || value == "" {
			return nil, contextutils.NewAppError(
				contextutils.ErrorCodeMissingRequired,
				contextutils.SeverityError,
				fmt.Sprintf("Missing required field: %s", name),
				fmt.Sprintf("field: %s", name),
			)
		}
		fields[name] = value
	}
	return fields, nil
}

// ParseScoringResult validates a scoring response. All four scores must be
// integers in [0,4] (floats are truncated), each criterion needs non-empty
// feedback, and at least one improvement tip is required.
func (s *Sanitizer) ParseScoringResult(ctx context.Context, raw string) (*models.ScoringResult, error) {
	data, err := s.ExtractObject(ctx, raw)
	if err != nil {
		return nil, err
	}

	deliveryScore, err := validateScore("delivery_score", data["delivery_score"])
	if err != nil {
		return nil, err
	}
	languageScore, err := validateScore("language_use_score", data["language_use_score"])
	if err != nil {
		return nil, err
	}
	topicScore, err := validateScore("topic_dev_score", data["topic_dev_score"])
	if err != nil {
		return nil, err
	}
	overallScore, err := validateScore("overall_score", data["overall_score"])
	if err != nil {
		return nil, err
	}

	deliveryFeedback, err := requireFeedback("delivery_feedback", data)
	if err != nil {
		return nil, err
	}
	languageFeedback, err := requireFeedback("language_use_feedback", data)
	if err != nil {
		return nil, err
	}
	topicFeedback, err := requireFeedback("topic_dev_feedback", data)
	if err != nil {
		return nil, err
	}

	tips, err := stringList("improvement_tips", data["improvement_tips"])
	if err != nil {
		return nil, err
	}
	if len(tips) == 0 {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeScoringFormat,
			contextutils.SeverityError,
			"at least one improvement tip is required",
			"field: improvement_tips",
		)
	}

	return &models.ScoringResult{
		OverallScore:     overallScore,
		Delivery:         models.ScoringDetail{Score: deliveryScore, Feedback: deliveryFeedback},
		LanguageUse:      models.ScoringDetail{Score: languageScore, Feedback: languageFeedback},
		TopicDevelopment: models.ScoringDetail{Score: topicScore, Feedback: topicFeedback},
		ImprovementTips:  tips,
	}, nil
}

// modelAnswerCategories are the highlight categories the frontend knows how
// to render. Anything else degrades to "example".
var modelAnswerCategories = map[string]bool{
	"transition": true,
	"example":    true,
	"conclusion": true,
}

// ParseModelAnswer validates a model-answer response. The answer text is
// required; highlighted phrases are best-effort and malformed entries are
// skipped rather than failing the whole answer.
func (s *Sanitizer) ParseModelAnswer(ctx context.Context, raw string) (*models.ModelAnswer, error) {
	data, err := s.ExtractObject(ctx, raw)
	if err != nil {
		return nil, err
	}

	answerText, _ := data["model_answer"].(string)
	if answerText == "" {
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeMissingRequired,
			contextutils.SeverityError,
			"Missing required field: model_answer",
			"field: model_answer",
		)
	}

	phrases := []models.HighlightedPhrase{}
	if rawPhrases, ok := data["highlighted_phrases"]; ok && rawPhrases != nil {
		list, ok := rawPhrases.([]interface{})
		if !ok {
			return nil, contextutils.NewAppError(
				contextutils.ErrorCodeScoringFormat,
				contextutils.SeverityError,
				"highlighted phrases must be a list",
				"field: highlighted_phrases",
			)
		}
		for _, entry := range list {
			phrase, ok := entry.(map[string]interface{})
			if !ok {
				s.logger.Warn(ctx, "Skipping malformed highlighted phrase", map[string]interface{}{})
				continue
			}

			text, _ := phrase["text"].(string)
			if text == "" {
				continue
			}

			category, _ := phrase["category"].(string)
			if !modelAnswerCategories[category] {
				s.logger.Warn(ctx, "Unknown highlight category, defaulting to example", map[string]interface{}{
					"category": category,
				})
				category = "example"
			}

			useful, _ := phrase["useful_for_writing"].(bool)
			phrases = append(phrases, models.HighlightedPhrase{
				Text:             text,
				Category:         category,
				UsefulForWriting: useful,
			})
		}
	}

	return &models.ModelAnswer{
		ModelAnswer:        answerText,
		HighlightedPhrases: phrases,
	}, nil
}

// ParseAIReview validates a personalized review record. Strengths and
// improvements are list-typed (singular strings are coerced); the three
// prose fields are required.
func (s *Sanitizer) ParseAIReview(ctx context.Context, raw string) (*models.AIReview, error) {
	data, err := s.ExtractObject(ctx, raw)
	if err != nil {
		return nil, err
	}

	for _, field := range []string{"specific_suggestions", "score_improvement_tips", "improved_response"} {
		if text, _ := data[field].(string); text == "" {
			return nil, contextutils.NewAppError(
				contextutils.ErrorCodeMissingRequired,
				contextutils.SeverityError,
				fmt.Sprintf("Missing required field: %s", field),
				fmt.Sprintf("field: %s", field),
			)
		}
	}

	strengths, err := stringList("strengths", data["strengths"])
	if err != nil {
		return nil, err
	}
	improvements, err := stringList("improvements", data["improvements"])
	if err != nil {
		return nil, err
	}

	suggestions, _ := data["specific_suggestions"].(string)
	tips, _ := data["score_improvement_tips"].(string)
	improved, _ := data["improved_response"].(string)

	return &models.AIReview{
		Strengths:            strengths,
		Improvements:         improvements,
		SpecificSuggestions:  suggestions,
		ScoreImprovementTips: tips,
		ImprovedResponse:     improved,
	}, nil
}

// validateScore checks one score value. Floats are truncated toward zero,
// never rounded; the valid range is the closed interval [0,4].
func validateScore(field string, value interface{}) (int, error) {
	if value == nil {
		return 0, contextutils.NewAppError(
			contextutils.ErrorCodeMissingRequired,
			contextutils.SeverityError,
			fmt.Sprintf("Missing required field: %s", field),
			fmt.Sprintf("field: %s", field),
		)
	}

	f, ok := value.(float64)
	if !ok {
		return 0, contextutils.NewAppError(
			contextutils.ErrorCodeScoringFormat,
			contextutils.SeverityError,
			fmt.Sprintf("invalid score type for %s", field),
			fmt.Sprintf("field: %s, value: %v", field, value),
		)
	}

	score := int(f)
	if score < 0 || score > 4 {
		return 0, contextutils.NewAppError(
			contextutils.ErrorCodeScoringFormat,
			contextutils.SeverityError,
			fmt.Sprintf("score for %s must be between 0 and 4", field),
			fmt.Sprintf("field: %s, value: %v", field, value),
		)
	}
	return score, nil
}

func requireFeedback(field string, data map[string]interface{}) (string, error) {
	feedback, _ := data[field].(string)
	if feedback == "" {
		return "", contextutils.NewAppError(
			contextutils.ErrorCodeScoringFormat,
			contextutils.SeverityError,
			fmt.Sprintf("missing %s", strings.ReplaceAll(strings.TrimSuffix(field, "_feedback"), "_", " ")+" feedback"),
			fmt.Sprintf("field: %s", field),
		)
	}
	return feedback, nil
}

// stringList coerces a list-typed field. A singular string becomes a
// one-element list; non-string entries fail validation.
func stringList(field string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, contextutils.NewAppError(
					contextutils.ErrorCodeScoringFormat,
					contextutils.SeverityError,
					fmt.Sprintf("%s entries must be strings", field),
					fmt.Sprintf("field: %s", field),
				)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeScoringFormat,
			contextutils.SeverityError,
			fmt.Sprintf("%s must be a list", field),
			fmt.Sprintf("field: %s", field),
		)
	}
}
