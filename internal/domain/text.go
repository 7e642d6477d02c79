package domain

import "strings"

// escapedNewline is the two-character sequence backslash + 'n'.
const escapedNewline = `\n`

// UnescapeNewlines replaces every literal `\n` sequence with a line break.
// No other escape sequence is interpreted.
func UnescapeNewlines(s string) string {
	return strings.ReplaceAll(s, escapedNewline, "\n")
}
