package contextutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLocalizedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     ErrorCode
		locale   Locale
		expected string
	}{
		{
			name:     "japanese rate limit message",
			code:     ErrorCodeRateLimit,
			locale:   LocaleJapanese,
			expected: "リクエスト制限を超えました。しばらく待ってから再試行してください。",
		},
		{
			name:     "japanese speech processing message",
			code:     ErrorCodeSpeechProcessing,
			locale:   LocaleJapanese,
			expected: "音声の文字起こしに失敗しました。もう一度録音してください。",
		},
		{
			name:     "japanese database connection message",
			code:     ErrorCodeDatabaseConnection,
			locale:   LocaleJapanese,
			expected: "データベースへの接続に失敗しました。しばらく待ってから再試行してください。",
		},
		{
			name:     "japanese database query message",
			code:     ErrorCodeDatabaseQuery,
			locale:   LocaleJapanese,
			expected: "データの処理に失敗しました。しばらく待ってから再試行してください。",
		},
		{
			name:     "english falls back to default text",
			code:     ErrorCodeRateLimit,
			locale:   LocaleEnglish,
			expected: "Rate limit exceeded",
		},
		{
			name:     "unknown code falls back to generic message",
			code:     ErrorCode("SOMETHING_ELSE"),
			locale:   LocaleJapanese,
			expected: "An error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetLocalizedMessage(tt.code, tt.locale))
		})
	}
}

func TestGetLocalizedMessageWithDetails(t *testing.T) {
	msg := GetLocalizedMessageWithDetails(ErrorCodeValidationError, LocaleJapanese, "field: answer_text")
	assert.Equal(t, "入力データが正しくありません。: field: answer_text", msg)

	msg = GetLocalizedMessageWithDetails(ErrorCodeValidationError, LocaleJapanese, "")
	assert.Equal(t, "入力データが正しくありません。", msg)
}

func TestParseLocale(t *testing.T) {
	assert.Equal(t, LocaleJapanese, ParseLocale("ja-JP"))
	assert.Equal(t, LocaleEnglish, ParseLocale("en-US"))
	assert.Equal(t, LocaleEnglish, ParseLocale("EN"))
	assert.Equal(t, LocaleJapanese, ParseLocale(""))
}

func TestLoadMessagesFromJSON(t *testing.T) {
	lm := NewLocalizedMessages()
	err := lm.LoadMessagesFromJSON(`{"AUTH_ERROR": {"ja": "カスタム", "en": "Custom"}}`)
	assert.NoError(t, err)
	assert.Equal(t, "カスタム", lm.GetMessage(ErrorCodeAuthError, LocaleJapanese))
	assert.Equal(t, "Custom", lm.GetMessage(ErrorCodeAuthError, LocaleEnglish))

	err = lm.LoadMessagesFromJSON(`not json`)
	assert.Error(t, err)
}
