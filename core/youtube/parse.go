package youtube

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bracketPattern    = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// titlePatterns are tried in order against the cleaned video title. The
// "by" form carries the track first, everything else the artist first.
var titlePatterns = []struct {
	re          *regexp.Regexp
	artistFirst bool
}{
	{regexp.MustCompile(`(?i)^(.+?)\s*[-–—]\s*(.+)$`), true},
	{regexp.MustCompile(`(?i)^(.+?)\s*\|\s*(.+)$`), true},
	{regexp.MustCompile(`(?i)^(.+?)\s*:\s*(.+)$`), true},
	{regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`), false},
}

// genericChannelWords mark channels that are labels or aggregators rather
// than the performing artist.
var genericChannelWords = []string{"official", "music", "records", "entertainment"}

// splitTitle extracts artist and track from a video title. Bracketed
// qualifiers ("(Official Video)", "[HD]") are stripped first; when no
// pattern matches, the channel name stands in as the artist unless it
// looks like a label channel.
func splitTitle(title, channel string) (artist, track string, ok bool) {
	clean := bracketPattern.ReplaceAllString(title, "")
	clean = strings.TrimSpace(whitespacePattern.ReplaceAllString(clean, " "))
	if clean == "" {
		return "", "", false
	}

	for _, p := range titlePatterns {
		m := p.re.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		if p.artistFirst {
			return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
		}
		return strings.TrimSpace(m[2]), strings.TrimSpace(m[1]), true
	}

	if channel != "" && !genericChannel(channel) {
		return channel, clean, true
	}

	if i := strings.Index(clean, " - "); i >= 0 {
		return strings.TrimSpace(clean[:i]), strings.TrimSpace(clean[i+3:]), true
	}

	return "", "", false
}

func genericChannel(channel string) bool {
	lower := strings.ToLower(channel)
	for _, w := range genericChannelWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts the contentDetails duration ("PT4M13S") to
// seconds, zero when the value is not a plain time period.
func parseISODuration(s string) int {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, unit := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}
