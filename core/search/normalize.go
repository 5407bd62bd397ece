package search

import (
	"regexp"
	"strings"
)

// maxQueryLen caps normalized queries so cache keys and history rows
// stay bounded no matter what a client sends.
const maxQueryLen = 200

var (
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\-()\[\].,!?'"]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
)

// Normalize cleans a raw query: strip everything outside letters,
// digits and basic punctuation, collapse whitespace runs, trim, and
// cap the length at maxQueryLen runes.
func Normalize(query string) string {
	cleaned := disallowedChars.ReplaceAllString(query, "")
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if runes := []rune(cleaned); len(runes) > maxQueryLen {
		cleaned = strings.TrimSpace(string(runes[:maxQueryLen]))
	}
	return cleaned
}
