package domain

import (
	"strings"
	"unicode"
)

// CleanText normalises line endings and strips control characters other
// than newline and tab. Model output passes through here before it is
// persisted or compared.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		}
		return r
	}, s)
}
