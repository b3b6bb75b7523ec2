package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxTextLength caps any accepted free-text field.
const maxTextLength = 5000

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	emailPattern  = regexp.MustCompile(`(?i)^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// SanitizeText collapses whitespace runs to single spaces, trims, and
// truncates to the maximum accepted length. Truncation never splits a
// multi-byte rune. Idempotent.
func SanitizeText(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > maxTextLength {
		cut := maxTextLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}

// SanitizeEmail trims and lower-cases an email address. Idempotent.
func SanitizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether the trimmed input looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML-significant characters. Every dynamic
// value interpolated into a rendered report must pass through here first,
// because those values ultimately originate from user input or LLM output.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
