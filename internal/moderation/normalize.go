package moderation

import (
	"strings"
	"unicode"
)

// Normalize trims surrounding whitespace (byte order marks included) and
// keeps at most maxLength characters (runes). A non-positive maxLength keeps
// nothing.
func Normalize(text string, maxLength int) string {
	trimmed := strings.TrimFunc(text, isTrimmable)
	if maxLength <= 0 {
		return ""
	}
	count := 0
	for i := range trimmed {
		if count == maxLength {
			return trimmed[:i]
		}
		count++
	}
	return trimmed
}

// ShouldEvaluateRules reports whether rules need to run at all.
func ShouldEvaluateRules(enabled bool, text string) bool {
	return enabled && text != ""
}

func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
