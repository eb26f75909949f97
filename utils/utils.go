package utils

import (
	"regexp"
	"strings"
)

var unsafeFilenameRunes = regexp.MustCompile(`[^\p{L}\p{N} _.\-]`)

// SanitizeFilename keeps letters, digits, spaces, dots, dashes and underscores;
// everything else becomes "_".
func SanitizeFilename(name string) string {
	clean := unsafeFilenameRunes.ReplaceAllString(name, "_")
	if strings.Trim(clean, ".") == "" {
		return "file"
	}
	return clean
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SafeKey replaces every non-alphanumeric rune with "_".
func SafeKey(s string) string {
	return nonAlnum.ReplaceAllString(s, "_")
}
