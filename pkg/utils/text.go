package utils

// TruncateRunes returns the first maxLen runes of s. Unlike a byte slice,
// this never splits a multi-byte character. If maxLen is 0 or negative,
// returns s unchanged.
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
