// Package codescan implements the forbidden/suspicious source-pattern
// check described in spec.md §7, grounded on
// original_source/bin/term/wizard/submit_wizard.rs's validate_agent and
// original_source/src/code_visibility.rs's static pre-visibility scan.
package codescan

import (
	"regexp"
	"strings"
)

// Finding is one matched pattern within a source file.
type Finding struct {
	Pattern  string
	Forbidden bool
	Line     int
}

// forbiddenPatterns refuse submission outright; suspiciousPatterns only
// warn, per spec.md §7 "prints a warning on suspicious patterns ...
// and refuses on forbidden patterns."
var forbiddenPatterns = []string{
	"subprocess",
	"os.system",
	"eval(",
	"exec(",
}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\s+socket\b`),
	regexp.MustCompile(`(?m)\bctypes\b`),
}

// Result is the outcome of ScanSource.
type Result struct {
	Forbidden []Finding
	Warnings  []Finding
}

// Refused reports whether any forbidden pattern was found.
func (r Result) Refused() bool { return len(r.Forbidden) > 0 }

// ScanSource scans source text for the fixed forbidden-pattern table
// plus a small set of additional suspicious patterns. It reports every
// match (not just the first), unlike the original's early-return, so a
// caller can surface the complete set of violations in one pass.
func ScanSource(source string) Result {
	var result Result

	lines := splitLines(source)
	for _, pattern := range forbiddenPatterns {
		for lineNo, line := range lines {
			if containsPattern(line, pattern) {
				result.Forbidden = append(result.Forbidden, Finding{Pattern: pattern, Forbidden: true, Line: lineNo + 1})
			}
		}
	}

	for _, re := range suspiciousPatterns {
		locs := re.FindAllStringIndex(source, -1)
		for _, loc := range locs {
			result.Warnings = append(result.Warnings, Finding{Pattern: re.String(), Forbidden: false, Line: lineAt(source, loc[0])})
		}
	}

	return result
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func containsPattern(line, pattern string) bool {
	return strings.Contains(line, pattern)
}

func lineAt(s string, offset int) int {
	line := 1
	for i := 0; i < offset && i < len(s); i++ {
		if s[i] == '\n' {
			line++
		}
	}
	return line
}

// HasAgentClass is the original's heuristic "source contains a class
// named Agent" check, used as a non-fatal submission warning.
func HasAgentClass(source string) bool {
	return containsPattern(source, "class") && containsPattern(source, "Agent")
}
