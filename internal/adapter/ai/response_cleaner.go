package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// ResponseCleaner extracts a usable JSON object from the free-form text
// chat models actually return: markdown fences, prose around the object,
// trailing commas.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// CleanJSONResponse returns the first JSON object embedded in response,
// cleaned of markdown fences and trailing commas. It fails with
// domain.ErrSchemaInvalid when no parseable object can be recovered.
func (rc *ResponseCleaner) CleanJSONResponse(response string) (string, error) {
	s := rc.removeMarkdownBlocks(response)
	s = rc.extractJSONObject(s)
	if json.Valid([]byte(s)) {
		return s, nil
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	if json.Valid([]byte(s)) {
		return s, nil
	}
	return "", fmt.Errorf("%w: no valid JSON object in model response", domain.ErrSchemaInvalid)
}

func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	s := strings.TrimSpace(response)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// extractJSONObject returns the substring from the first '{' to its
// matching closing brace, tracking string literals so braces inside
// comment text do not break the match.
func (rc *ResponseCleaner) extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
