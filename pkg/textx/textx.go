// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeWhitespace collapses runs of spaces and tabs into single spaces
// while preserving paragraph breaks.
func NormalizeWhitespace(s string) string {
	paragraphs := SplitParagraphs(s)
	for i, p := range paragraphs {
		paragraphs[i] = strings.Join(strings.Fields(p), " ")
	}
	return strings.Join(paragraphs, "\n\n")
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// SplitParagraphs splits s on blank lines and drops empty chunks.
func SplitParagraphs(s string) []string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// CountSentences estimates the number of sentences by terminal punctuation.
// A text with words but no terminal punctuation counts as one sentence.
func CountSentences(s string) int {
	n := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			n++
		}
	}
	if n == 0 && CountWords(s) > 0 {
		return 1
	}
	return n
}

// HasUppercaseStart reports whether the first letter of s is uppercase.
func HasUppercaseStart(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
		return false
	}
	return false
}
