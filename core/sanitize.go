package core

import "regexp"

var (
	invalidAgentNameChar = regexp.MustCompile(`[^A-Za-z0-9_]`)
	leadingDigitOrSymbol = regexp.MustCompile(`^[^A-Za-z_]`)
)

// SanitizeAgentName turns a task id into a valid agent name matching
// [A-Za-z_][A-Za-z0-9_]*: every character outside [A-Za-z0-9_] becomes '_',
// and if the result doesn't start with a letter or underscore it is
// prefixed with "task_".
func SanitizeAgentName(taskID string) string {
	sanitized := invalidAgentNameChar.ReplaceAllString(taskID, "_")
	if leadingDigitOrSymbol.MatchString(sanitized) {
		sanitized = "task_" + sanitized
	}
	if sanitized == "" {
		sanitized = "task_"
	}
	return sanitized
}
