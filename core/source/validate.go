package source

import (
	"strings"

	"TrackHound/model"
)

const (
	minTrackDuration = 10   // seconds
	maxTrackDuration = 7200 // 2 hours
)

// blockedWords marks titles that are almost certainly not music.
var blockedWords = []string{
	"interview",
	"live stream",
	"podcast",
	"tutorial",
	"reaction",
	"review",
	"behind the scenes",
	"making of",
	"documentary",
	"news",
	"vlog",
	"gameplay",
	"walkthrough",
	"trailer",
}

// ValidateOptions tweaks validation per adapter class.
type ValidateOptions struct {
	// MetadataOnly adapters report catalog durations that can legitimately
	// be very short (ringtones, intros), so the duration floor is skipped.
	MetadataOnly bool
}

// Validate reports whether a candidate result is worth surfacing.
// It enforces the shared adapter-boundary rules: non-empty title and
// artist, sane duration, and a non-music title blocklist.
func Validate(r model.SearchResult, opts ValidateOptions) bool {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Artist) == "" {
		return false
	}

	if r.Duration > 0 {
		if !opts.MetadataOnly && r.Duration < minTrackDuration {
			return false
		}
		if r.Duration > maxTrackDuration {
			return false
		}
	}

	title := strings.ToLower(r.Title)
	for _, w := range blockedWords {
		if strings.Contains(title, w) {
			return false
		}
	}

	return true
}

// FilterValid keeps only the candidates that pass Validate, preserving order.
func FilterValid(results []model.SearchResult, opts ValidateOptions) []model.SearchResult {
	out := results[:0:0]
	for _, r := range results {
		if Validate(r, opts) {
			out = append(out, r)
		}
	}
	return out
}
