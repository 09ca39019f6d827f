package utils

// Truncate shortens s to maxLen runes, appending "..." when it was cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// ShortSHA returns the abbreviated form of a commit id for display.
func ShortSHA(sha string) string {
	if len(sha) <= 8 {
		return sha
	}
	return sha[:8]
}
