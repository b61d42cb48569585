package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  worn fixture  ", "no gauge check "},
			expected: []string{"worn fixture", "no gauge check"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"worn fixture", "no gauge check", "worn fixture"},
			expected: []string{"worn fixture", "no gauge check"},
		},
		{
			name:     "drops empty and whitespace-only elements",
			input:    []string{"worn fixture", "", "   ", "no gauge check"},
			expected: []string{"worn fixture", "no gauge check"},
		},
		{
			name:     "case is significant",
			input:    []string{"Worn fixture", "worn fixture"},
			expected: []string{"Worn fixture", "worn fixture"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "lowercases",
			input:    "Supplier Changed Alloy",
			expected: "supplier changed alloy",
		},
		{
			name:     "collapses whitespace runs",
			input:    "supplier   changed\talloy",
			expected: "supplier changed alloy",
		},
		{
			name:     "punctuation separates like whitespace",
			input:    "supplier changed alloy, without notice.",
			expected: "supplier changed alloy without notice",
		},
		{
			name:     "leading and trailing separators drop",
			input:    "  (supplier changed alloy)  ",
			expected: "supplier changed alloy",
		},
		{
			name:     "digits survive",
			input:    "Torque set to 45 Nm",
			expected: "torque set to 45 nm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}
