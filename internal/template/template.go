// internal/template/template.go
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var templateVar = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Expand replaces {{variable}} placeholders with values from data
func Expand(tmpl string, data map[string]any) string {
	return expand(tmpl, data, func(s string) string { return s })
}

// ExpandShell is Expand for shell command lines: every substituted value is
// single-quoted so file names cannot inject shell syntax.
func ExpandShell(tmpl string, data map[string]any) string {
	return expand(tmpl, data, ShellQuote)
}

func expand(tmpl string, data map[string]any, quote func(string) string) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		varName := templateVar.FindStringSubmatch(match)[1]
		if val, ok := data[varName]; ok {
			return quote(fmt.Sprintf("%v", val))
		}
		return match // Keep original if not found
	})
}

// Vars lists the variable names referenced by tmpl, in order of first use.
func Vars(tmpl string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range templateVar.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
