package vkaudio

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"TrackHound/model"
)

// Mobile search page markup. The mobile site is served without the heavy
// anti-bot layer, so these blocks are stable enough to pattern-match.
var (
	mobileItemPattern     = regexp.MustCompile(`(?s)<div[^>]*class="[^"]*audio_item[^"]*"[^>]*>(.*?)</div>`)
	mobileTitlePattern    = regexp.MustCompile(`<span[^>]*class="[^"]*ai_title[^"]*"[^>]*>([^<]+)</span>`)
	mobileArtistPattern   = regexp.MustCompile(`<span[^>]*class="[^"]*ai_artist[^"]*"[^>]*>([^<]+)</span>`)
	mobileDurationPattern = regexp.MustCompile(`<span[^>]*class="[^"]*ai_dur[^"]*"[^>]*>([^<]+)</span>`)
	mobileURLPattern      = regexp.MustCompile(`data-url="([^"]+)"`)
	mobileIDPattern       = regexp.MustCompile(`data-audio="([^"]+)"`)
)

// Track page stream candidates, tried in order on the resolve path.
var streamCandidatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"url":"([^"]+)"`),
	regexp.MustCompile(`data-url="([^"]+)"`),
	regexp.MustCompile(`(?s)audio_api_unavailable.*?"([^"]+\.mp3[^"]*)"`),
	regexp.MustCompile(`src="([^"]+\.mp3[^"]*)"`),
	regexp.MustCompile(`href="([^"]+\.mp3[^"]*)"`),
}

// parseMobileResults extracts tracks from the mobile search page.
func parseMobileResults(pageHTML string) []model.SearchResult {
	var results []model.SearchResult

	for _, block := range mobileItemPattern.FindAllStringSubmatch(pageHTML, -1) {
		item := block[1]

		titleMatch := mobileTitlePattern.FindStringSubmatch(item)
		artistMatch := mobileArtistPattern.FindStringSubmatch(item)
		if titleMatch == nil || artistMatch == nil {
			continue
		}

		result := model.SearchResult{
			Title:    strings.TrimSpace(html.UnescapeString(titleMatch[1])),
			Artist:   strings.TrimSpace(html.UnescapeString(artistMatch[1])),
			Source:   model.SourceVKAudio,
			Quality:  model.QualityMedium,
			Metadata: map[string]string{"origin": "mobile_search"},
		}

		if m := mobileDurationPattern.FindStringSubmatch(item); m != nil {
			result.Duration = parseClock(m[1])
		}
		if m := mobileIDPattern.FindStringSubmatch(item); m != nil {
			result.ExternalID = m[1]
			result.URL = webBase + "/audio" + m[1]
		}
		if m := mobileURLPattern.FindStringSubmatch(item); m != nil {
			if decoded, ok := DecodeURL(m[1]); ok {
				result.DownloadURL = decoded
			}
		}

		results = append(results, result)
	}
	return results
}

// extractStreamCandidates collects every encoded URL the track page embeds.
func extractStreamCandidates(pageHTML string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range streamCandidatePatterns {
		for _, m := range pattern.FindAllStringSubmatch(pageHTML, -1) {
			if _, dup := seen[m[1]]; dup {
				continue
			}
			seen[m[1]] = struct{}{}
			out = append(out, m[1])
		}
	}
	return out
}

// parseClock converts "3:47" or "1:02:03" to seconds.
func parseClock(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
