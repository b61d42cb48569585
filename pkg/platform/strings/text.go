// Package strings holds the free-text canonicalization shared by request
// validation and recurrence matching.
package strings

import (
	"strings"
	"unicode"
)

// DedupeAndTrim trims every element, drops empties, and removes duplicates
// while preserving first-seen order. Contributing-factor lists pass through
// here before they are recorded on a finding.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// Canonicalize reduces free text to a comparison key: lowercase, punctuation
// stripped, runs of whitespace collapsed to single spaces. Two root-cause
// statements that differ only in wording cosmetics canonicalize to the same
// string.
func Canonicalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pending && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pending = false
			b.WriteRune(r)
		default:
			// whitespace and punctuation both act as separators
			pending = true
		}
	}
	return b.String()
}
