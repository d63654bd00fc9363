package moderation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchMode tells how a pattern is applied to text.
type MatchMode string

const (
	ModeRegex   MatchMode = "regex"
	ModeLiteral MatchMode = "literal"
)

// Matcher is a compiled rule pattern.
type Matcher interface {
	Mode() MatchMode
	// Match reports whether the pattern occurs anywhere in text.
	Match(text string) bool
	// ReplaceAll substitutes replacement, verbatim, for every occurrence.
	ReplaceAll(text, replacement string) string
}

// Compile builds a case-insensitive matcher for pattern. Patterns that are
// not valid regular expressions are matched as plain substrings instead.
// The empty pattern never matches.
func Compile(pattern string) Matcher {
	if pattern == "" {
		return newLiteralMatcher(pattern)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return newLiteralMatcher(pattern)
	}
	return &regexMatcher{re: re}
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Mode() MatchMode { return ModeRegex }

func (m *regexMatcher) Match(text string) bool {
	return m.re.MatchString(text)
}

func (m *regexMatcher) ReplaceAll(text, replacement string) string {
	return m.re.ReplaceAllLiteralString(text, replacement)
}

// literalMatcher does case-insensitive substring search over the original
// bytes. Invalid UTF-8 only matches the identical byte, and text outside a
// match is copied through untouched.
type literalMatcher struct {
	needle string
}

func newLiteralMatcher(pattern string) *literalMatcher {
	return &literalMatcher{needle: pattern}
}

func (m *literalMatcher) Mode() MatchMode { return ModeLiteral }

func (m *literalMatcher) Match(text string) bool {
	if m.needle == "" {
		return false
	}
	start, _ := m.index(text, 0)
	return start >= 0
}

func (m *literalMatcher) ReplaceAll(text, replacement string) string {
	if m.needle == "" {
		return text
	}
	var b strings.Builder
	pos := 0
	for {
		start, end := m.index(text, pos)
		if start < 0 {
			break
		}
		if b.Len() == 0 {
			b.Grow(len(text))
		}
		b.WriteString(text[pos:start])
		b.WriteString(replacement)
		pos = end
	}
	if pos == 0 {
		return text
	}
	b.WriteString(text[pos:])
	return b.String()
}

// index returns the byte span of the first occurrence at or after from, or -1, -1.
func (m *literalMatcher) index(text string, from int) (int, int) {
	for i := from; i < len(text); {
		if end, ok := m.matchAt(text, i); ok {
			return i, end
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1, -1
}

// matchAt reports whether needle occurs at byte offset i and where it ends.
func (m *literalMatcher) matchAt(text string, i int) (int, bool) {
	for j := 0; j < len(m.needle); {
		if i >= len(text) {
			return 0, false
		}
		nr, nsize := utf8.DecodeRuneInString(m.needle[j:])
		tr, tsize := utf8.DecodeRuneInString(text[i:])
		if invalidByte(nr, nsize) || invalidByte(tr, tsize) {
			if text[i:i+tsize] != m.needle[j:j+nsize] {
				return 0, false
			}
		} else if !equalFoldRune(tr, nr) {
			return 0, false
		}
		i += tsize
		j += nsize
	}
	return i, true
}

func invalidByte(r rune, size int) bool {
	return r == utf8.RuneError && size == 1
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	// Walk the fold orbit, the same equivalence (?i) uses.
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
