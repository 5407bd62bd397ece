package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"TrackHound/logger"
)

const (
	suggestionLimit     = 5
	minSuggestionPrefix = 2
)

// Suggestions completes a query prefix from recorded popular searches,
// blended with hits from the correction table. Prefixes shorter than
// two runes return nothing.
func (s *Service) Suggestions(ctx context.Context, prefix string) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if utf8.RuneCountInString(prefix) < minSuggestionPrefix {
		return nil
	}

	var out []string
	seen := make(map[string]struct{}, suggestionLimit)
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if s.suggestions != nil {
		popular, err := s.suggestions.ByPrefix(ctx, prefix, suggestionLimit)
		if err != nil {
			s.log.Warn("loading suggestions failed",
				logger.String("prefix", prefix), logger.ErrorField(err))
		}
		for _, v := range popular {
			add(v)
		}
	}
	if s.corrections != nil {
		for _, v := range s.corrections.MatchPrefix(prefix, suggestionLimit) {
			add(v)
		}
	}

	if len(out) > suggestionLimit {
		out = out[:suggestionLimit]
	}
	return out
}
