// Package strutil holds small string helpers shared by the memory packages.
package strutil

// Truncate shortens s to at most maxLen runes, appending "..." when it cut anything.
// maxLen <= 0 yields "".
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Preview returns a short excerpt of s for log lines.
func Preview(s string) string {
	return Truncate(s, previewLen)
}

const previewLen = 40
