package search

import (
	"sort"
	"strings"

	"TrackHound/model"
)

// Relevance scoring: exact matches dominate, substring matches count
// half, token overlap breaks ties between near-misses, and small
// source/quality bonuses order otherwise equal results.
const (
	exactTitleScore   = 100
	subTitleScore     = 50
	exactArtistScore  = 80
	subArtistScore    = 40
	titleTokenWeight  = 10
	artistTokenWeight = 8
)

var sourceBonus = map[model.TrackSource]float64{
	model.SourceSpotify: 10,
	model.SourceVKAudio: 8,
	model.SourceYouTube: 6,
}

func qualityBonus(q model.AudioQuality) float64 {
	switch q {
	case model.QualityUltra:
		return 5
	case model.QualityHigh:
		return 3
	case model.QualityMedium:
		return 1
	default:
		return 0
	}
}

// Rank orders results in place by relevance to the query, best first.
// The sort is stable, so equal scores keep the aggregator's order.
func Rank(results []model.SearchResult, query string) {
	if len(results) < 2 {
		return
	}
	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTokens := tokenSet(queryLower)

	type ranked struct {
		result model.SearchResult
		score  float64
	}
	rs := make([]ranked, len(results))
	for i, r := range results {
		rs[i] = ranked{result: r, score: relevance(r, queryLower, queryTokens)}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })
	for i := range rs {
		results[i] = rs[i].result
	}
}

func relevance(r model.SearchResult, query string, queryTokens map[string]struct{}) float64 {
	title := strings.ToLower(r.Title)
	artist := strings.ToLower(r.Artist)

	var score float64
	switch {
	case title == query:
		score += exactTitleScore
	case strings.Contains(title, query):
		score += subTitleScore
	}
	switch {
	case artist == query:
		score += exactArtistScore
	case strings.Contains(artist, query):
		score += subArtistScore
	}
	score += float64(overlap(queryTokens, tokenSet(title))) * titleTokenWeight
	score += float64(overlap(queryTokens, tokenSet(artist))) * artistTokenWeight
	score += sourceBonus[r.Source]
	score += qualityBonus(r.Quality)
	return score
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
