package videos

import (
	"strings"
	"unicode"
)

const (
	maxFilenameRunes = 80
	fallbackFilename = "download"
)

// SanitizeFilename keeps letters, digits, whitespace and hyphens from title and
// truncates the result to 80 characters.
func SanitizeFilename(title string) string {
	var b strings.Builder
	count := 0
	for _, r := range title {
		if count == maxFilenameRunes {
			break
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && r != '-' {
			continue
		}
		if unicode.IsSpace(r) {
			r = ' '
		}
		b.WriteRune(r)
		count++
	}

	name := strings.TrimSpace(b.String())
	if name == "" {
		return fallbackFilename
	}
	return name
}
