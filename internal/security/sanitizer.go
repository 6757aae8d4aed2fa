// internal/security/sanitizer.go
package security

import (
	"strings"
	"unicode/utf8"
)

// MaxValueLen is the longest template value passed to an action, in bytes.
const MaxValueLen = 1024

// SanitizeValue cleans an event value before it is substituted into an
// action command: control characters other than tab are dropped and the
// result is cut to MaxValueLen bytes on a rune boundary.
func SanitizeValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r < 0x20 && r != '\t') || r == 0x7f || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}
	result := b.String()

	if len(result) > MaxValueLen {
		cut := MaxValueLen
		for cut > 0 && !utf8.RuneStart(result[cut]) {
			cut--
		}
		result = result[:cut]
	}
	return result
}

// SanitizeData applies SanitizeValue to every string value of an event
// data map and returns a copy.
func SanitizeData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = SanitizeValue(s)
			continue
		}
		out[k] = v
	}
	return out
}
