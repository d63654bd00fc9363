package moderation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultMaxLength is the character limit applied when the store has no usable value.
	DefaultMaxLength = 80

	settingEnabled   = "enabled"
	settingMaxLength = "max_message_length"
)

// Settings are the resolved filter settings for one call.
type Settings struct {
	Enabled   bool
	MaxLength int
}

// DefaultSettings returns the settings used when the store has no filter settings.
func DefaultSettings() Settings {
	return Settings{Enabled: true, MaxLength: DefaultMaxLength}
}

// ResolveSettings coerces a raw settings payload field by field. Unusable
// fields fall back to their defaults; it never fails.
func ResolveSettings(raw map[string]any) Settings {
	s := DefaultSettings()
	if raw == nil {
		return s
	}
	if v, ok := raw[settingEnabled].(bool); ok {
		s.Enabled = v
	}
	if n, ok := coerceMaxLength(raw[settingMaxLength]); ok {
		s.MaxLength = n
	}
	return s
}

// coerceMaxLength accepts any numeric value verbatim (fractions truncated)
// and numeric strings only when they parse to a positive integer.
func coerceMaxLength(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return clampInt64(n), true
	case uint:
		return clampUint64(uint64(n)), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return clampUint64(uint64(n)), true
	case uint64:
		return clampUint64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return clampInt64(i), true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case string:
		i, ok := parseLeadingInt(n)
		if !ok || i <= 0 {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f >= math.MaxInt {
		return math.MaxInt, true
	}
	if f <= math.MinInt {
		return math.MinInt, true
	}
	return int(f), true
}

func clampInt64(n int64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	if n < math.MinInt {
		return math.MinInt
	}
	return int(n)
}

func clampUint64(n uint64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// parseLeadingInt reads an optionally signed run of decimal digits after
// leading whitespace, ignoring whatever follows ("42px" is 42).
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// Only a range error is possible here.
		if s[0] == '-' {
			return math.MinInt, true
		}
		return math.MaxInt, true
	}
	return clampInt64(n), true
}
