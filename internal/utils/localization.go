package contextutils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Locale represents a language locale (e.g., "en", "ja")
type Locale string

const (
	// LocaleEnglish represents English language
	LocaleEnglish Locale = "en"
	// LocaleJapanese represents Japanese language
	LocaleJapanese Locale = "ja"
)

// LocalizedMessages contains localized error messages for different locales
type LocalizedMessages struct {
	messages map[ErrorCode]map[Locale]string
}

// NewLocalizedMessages creates a new instance of localized messages
func NewLocalizedMessages() *LocalizedMessages {
	return &LocalizedMessages{
		messages: make(map[ErrorCode]map[Locale]string),
	}
}

// AddMessage adds a localized message for a specific error code and locale
func (lm *LocalizedMessages) AddMessage(code ErrorCode, locale Locale, message string) {
	if lm.messages[code] == nil {
		lm.messages[code] = make(map[Locale]string)
	}
	lm.messages[code][locale] = message
}

// GetMessage returns the localized message for an error code and locale
func (lm *LocalizedMessages) GetMessage(code ErrorCode, locale Locale) string {
	// Try to get the message for the specific locale
	if localeMessages, exists := lm.messages[code]; exists {
		if message, exists := localeMessages[locale]; exists {
			return message
		}

		// Fallback to English if the specific locale doesn't have a message
		if message, exists := localeMessages[LocaleEnglish]; exists {
			return message
		}
	}

	// Fallback to a default message
	return getDefaultMessage(code)
}

// GetMessageWithDetails returns a localized message with additional details
func (lm *LocalizedMessages) GetMessageWithDetails(code ErrorCode, locale Locale, details string) string {
	message := lm.GetMessage(code, locale)
	if details != "" {
		return fmt.Sprintf("%s: %s", message, details)
	}
	return message
}

// getDefaultMessage returns a default English message for error codes
func getDefaultMessage(code ErrorCode) string {
	switch code {
	case ErrorCodeDatabaseConnection:
		return "Database connection failed"
	case ErrorCodeDatabaseQuery:
		return "Database query failed"
	case ErrorCodeDatabaseTransaction:
		return "Database transaction failed"
	case ErrorCodeRecordNotFound:
		return "Record not found"
	case ErrorCodeRecordExists:
		return "Record already exists"
	case ErrorCodeInvalidInput:
		return "Invalid input"
	case ErrorCodeMissingRequired:
		return "Missing required field"
	case ErrorCodeValidationError:
		return "Validation failed"
	case ErrorCodeAuthError:
		return "Authentication failed"
	case ErrorCodeInvalidCredentials:
		return "Invalid credentials"
	case ErrorCodeSessionExpired:
		return "Session expired"
	case ErrorCodeServiceUnavailable:
		return "Service temporarily unavailable"
	case ErrorCodeTimeout:
		return "Request timeout"
	case ErrorCodeRateLimit:
		return "Rate limit exceeded"
	case ErrorCodeInternalError:
		return "Internal server error"
	case ErrorCodeExternalAPI:
		return "External API call failed"
	case ErrorCodeProblemGeneration:
		return "Problem generation failed"
	case ErrorCodeScoring:
		return "Scoring failed"
	case ErrorCodeSpeechProcessing:
		return "Speech processing failed"
	case ErrorCodeGenerationFormat:
		return "Generation response format invalid"
	case ErrorCodeScoringFormat:
		return "Scoring response format invalid"
	default:
		return "An error occurred"
	}
}

// LoadMessagesFromJSON loads localized messages from a JSON structure
func (lm *LocalizedMessages) LoadMessagesFromJSON(jsonData string) error {
	var data map[string]map[string]string
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return WrapError(err, "failed to parse localization JSON")
	}

	for codeStr, localeMessages := range data {
		code := ErrorCode(codeStr)
		for localeStr, message := range localeMessages {
			locale := Locale(localeStr)
			lm.AddMessage(code, locale, message)
		}
	}

	return nil
}

// GetSupportedLocales returns a list of supported locales
func (lm *LocalizedMessages) GetSupportedLocales() []Locale {
	locales := make(map[Locale]bool)

	for _, localeMessages := range lm.messages {
		for locale := range localeMessages {
			locales[locale] = true
		}
	}

	result := make([]Locale, 0, len(locales))
	for locale := range locales {
		result = append(result, locale)
	}

	return result
}

// ParseLocale parses a locale string (e.g., "ja-JP", "en-US") and returns the language part
func ParseLocale(localeStr string) Locale {
	parts := strings.Split(localeStr, "-")
	if len(parts) > 0 && parts[0] != "" {
		return Locale(strings.ToLower(parts[0]))
	}
	return LocaleJapanese // Learner-facing default
}

// Global instance of localized messages
var globalLocalizedMessages = NewLocalizedMessages()

// init loads the learner-facing Japanese messages
func init() {
	globalLocalizedMessages.AddMessage(ErrorCodeAuthError, LocaleJapanese, "ログインに失敗しました。もう一度お試しください。")
	globalLocalizedMessages.AddMessage(ErrorCodeInvalidCredentials, LocaleJapanese, "ユーザー名またはパスワードが正しくありません。")
	globalLocalizedMessages.AddMessage(ErrorCodeSessionExpired, LocaleJapanese, "セッションの有効期限が切れました。再度ログインしてください。")

	globalLocalizedMessages.AddMessage(ErrorCodeProblemGeneration, LocaleJapanese, "問題の生成に失敗しました。もう一度お試しください。")
	globalLocalizedMessages.AddMessage(ErrorCodeGenerationFormat, LocaleJapanese, "問題の生成に失敗しました。もう一度お試しください。")
	globalLocalizedMessages.AddMessage(ErrorCodeSpeechProcessing, LocaleJapanese, "音声の文字起こしに失敗しました。もう一度録音してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeScoring, LocaleJapanese, "採点処理に失敗しました。もう一度お試しください。")
	globalLocalizedMessages.AddMessage(ErrorCodeScoringFormat, LocaleJapanese, "採点処理に失敗しました。もう一度お試しください。")

	globalLocalizedMessages.AddMessage(ErrorCodeRateLimit, LocaleJapanese, "リクエスト制限を超えました。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeExternalAPI, LocaleJapanese, "外部サービスとの通信に失敗しました。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeValidationError, LocaleJapanese, "入力データが正しくありません。")
	globalLocalizedMessages.AddMessage(ErrorCodeInvalidInput, LocaleJapanese, "入力データが正しくありません。")
	globalLocalizedMessages.AddMessage(ErrorCodeMissingRequired, LocaleJapanese, "必須項目が入力されていません。")

	globalLocalizedMessages.AddMessage(ErrorCodeRecordNotFound, LocaleJapanese, "データが見つかりませんでした。")
	globalLocalizedMessages.AddMessage(ErrorCodeDatabaseConnection, LocaleJapanese, "データベースへの接続に失敗しました。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeDatabaseQuery, LocaleJapanese, "データの処理に失敗しました。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeDatabaseTransaction, LocaleJapanese, "データの処理に失敗しました。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeTimeout, LocaleJapanese, "リクエストがタイムアウトしました。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeServiceUnavailable, LocaleJapanese, "サービスが一時的に利用できません。しばらく待ってから再試行してください。")
	globalLocalizedMessages.AddMessage(ErrorCodeInternalError, LocaleJapanese, "サーバーエラーが発生しました。しばらく待ってから再試行してください。")
}

// GetLocalizedMessage returns a localized error message using the global instance
func GetLocalizedMessage(code ErrorCode, locale Locale) string {
	return globalLocalizedMessages.GetMessage(code, locale)
}

// GetLocalizedMessageWithDetails returns a localized error message with details
func GetLocalizedMessageWithDetails(code ErrorCode, locale Locale, details string) string {
	return globalLocalizedMessages.GetMessageWithDetails(code, locale, details)
}

// SetGlobalLocalizedMessages sets the global localized messages instance
func SetGlobalLocalizedMessages(messages *LocalizedMessages) {
	globalLocalizedMessages = messages
}
