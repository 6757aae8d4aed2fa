// internal/security/scrubber.go
package security

import (
	"regexp"
	"unicode/utf8"
)

// MaxOutputLen is the longest action output kept in history, in bytes.
const MaxOutputLen = 10 * 1024

var (
	// Credentials in URL query strings: ?token=..., &api_key=...
	queryTokenPattern = regexp.MustCompile(`(?i)([?&](?:token|access_token|api_key|apikey|key|secret|signature|sig)=)[^&\s"']+`)
	// KEY=value and key: value assignments of obvious secrets
	assignmentPattern = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:PASSWORD|PASSWD|SECRET|TOKEN|API_?KEY)[A-Z0-9_]*\s*[=:]\s*)[^\s&"']+`)
	// Bearer token pattern
	bearerPattern = regexp.MustCompile(`Bearer\s+\S{20,}`)
	// AWS access key ids
	awsKeyPattern = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	// Long hex strings (32+ chars), likely API keys
	hexKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

// ScrubOutput redacts sensitive data from output before storage.
func ScrubOutput(output string) string {
	result := queryTokenPattern.ReplaceAllString(output, "${1}[REDACTED]")
	result = assignmentPattern.ReplaceAllString(result, "${1}[REDACTED]")
	result = bearerPattern.ReplaceAllString(result, "Bearer [REDACTED]")
	result = awsKeyPattern.ReplaceAllString(result, "[REDACTED]")
	result = hexKeyPattern.ReplaceAllString(result, "[REDACTED]")
	return result
}

// TruncateOutput keeps the last MaxOutputLen bytes of output, where errors
// usually are.
func TruncateOutput(output string) string {
	if len(output) <= MaxOutputLen {
		return output
	}
	start := len(output) - MaxOutputLen
	for start < len(output) && !utf8.RuneStart(output[start]) {
		start++
	}
	return "[truncated]\n" + output[start:]
}
