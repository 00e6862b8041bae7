package contextutils

import (
	"strings"
)

// MaskToken masks an API key or session token for logging purposes.
// Returns a masked version that shows only the first 4 and last 4 characters.
func MaskToken(token string) string {
	if token == "" {
		return "[EMPTY]"
	}

	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}

	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
