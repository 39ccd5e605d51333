package job

import (
	"strings"
	"unicode"
)

const (
	// MaxNameLength bounds sanitized artifact stems used in forward job names.
	MaxNameLength = 100

	// MaxResubmitNameLength bounds the original name before ResubmitSuffix is appended.
	MaxResubmitNameLength = 90

	// ResubmitSuffix marks jobs created by failure recovery.
	ResubmitSuffix = "_lambdaResub"
)

// SafeName replaces every non-word character with '_' and truncates the
// result to MaxNameLength characters.
func SafeName(s string) string {
	return truncate(sanitize(s), MaxNameLength)
}

// ResubmitName derives the name of a recovery resubmission from the failed
// job's name.
func ResubmitName(original string) string {
	return truncate(sanitize(original), MaxResubmitNameLength) + ResubmitSuffix
}

// IsResubmission reports whether name was produced by ResubmitName.
func IsResubmission(name string) bool {
	return strings.HasSuffix(name, ResubmitSuffix)
}

// sanitize maps runes outside the word class (letters, numbers, '_') to '_'.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return '_'
	}, s)
}

// truncate keeps at most n characters. Counting is by rune, not byte.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
