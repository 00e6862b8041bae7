package contextutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{
			name:     "empty token",
			token:    "",
			expected: "[EMPTY]",
		},
		{
			name:     "short token (4 chars)",
			token:    "abcd",
			expected: "****",
		},
		{
			name:     "short token (8 chars)",
			token:    "abcdefgh",
			expected: "********",
		},
		{
			name:     "long token shows edges",
			token:    "sk-1234567890abcdef",
			expected: "sk-1***********cdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskToken(tt.token))
		})
	}
}
