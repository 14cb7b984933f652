package prompt

import (
	"fmt"
	"strings"
)

// GetSystemPrompt provides strict directions for the triage summary output.
func GetSystemPrompt() string {
	return `You are a senior software engineer triaging production error reports. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- summary is 2-3 sentences describing the most likely root cause.
- suggested_fix is concise and actionable; say "unknown" when the backtrace is insufficient.
- Never invent file names or line numbers that do not appear in the backtrace.

Schema (example with empty values):
{
  "error_class": "<string>",
  "summary": "<string>",
  "suggested_fix": "<string>"
}`
}

// GetUserPrompt builds a compact user message around one error report.
func GetUserPrompt(errorClass, message string, backtrace []string) string {
	return fmt.Sprintf(
		"Triage this error and respond with the JSON per schema.\nerror_class: %s\nmessage: %s\nbacktrace:\n%s",
		errorClass, message, strings.Join(backtrace, "\n"),
	)
}
