package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"TrackHound/model"
)

func titled(title, artist string, src model.TrackSource, q model.AudioQuality) model.SearchResult {
	return model.SearchResult{
		Title:      title,
		Artist:     artist,
		Source:     src,
		Quality:    q,
		ExternalID: title,
		Duration:   200,
	}
}

func titles(results []model.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Title
	}
	return out
}

func TestRankExactTitleBeatsSubstringAndSource(t *testing.T) {
	results := []model.SearchResult{
		titled("Believer Remix", "Various", model.SourceSpotify, model.QualityUltra),
		titled("Believer", "Imagine Dragons", model.SourceYouTube, ""),
	}
	Rank(results, "believer")
	assert.Equal(t, []string{"Believer", "Believer Remix"}, titles(results))
}

func TestRankArtistSignal(t *testing.T) {
	results := []model.SearchResult{
		titled("Imagine Dragons Greatest", "Various", model.SourceVKAudio, ""),
		titled("Believer", "Imagine Dragons", model.SourceVKAudio, ""),
	}
	Rank(results, "imagine dragons")
	assert.Equal(t, []string{"Believer", "Imagine Dragons Greatest"}, titles(results))
}

func TestRankSourceBonusBreaksTies(t *testing.T) {
	results := []model.SearchResult{
		titled("Uprising", "Alpha", model.SourceYouTube, ""),
		titled("Uprising", "Bravo", model.SourceVKAudio, ""),
		titled("Uprising", "Charlie", model.SourceSpotify, ""),
	}
	Rank(results, "uprising")
	want := []model.TrackSource{model.SourceSpotify, model.SourceVKAudio, model.SourceYouTube}
	got := make([]model.TrackSource, len(results))
	for i, r := range results {
		got[i] = r.Source
	}
	assert.Equal(t, want, got)
}

func TestRankQualityBonusBreaksTies(t *testing.T) {
	results := []model.SearchResult{
		titled("Uprising", "Alpha", model.SourceVKAudio, model.QualityLow),
		titled("Uprising", "Bravo", model.SourceVKAudio, model.QualityUltra),
		titled("Uprising", "Charlie", model.SourceVKAudio, model.QualityMedium),
	}
	Rank(results, "uprising")
	want := []model.AudioQuality{model.QualityUltra, model.QualityMedium, model.QualityLow}
	got := make([]model.AudioQuality, len(results))
	for i, r := range results {
		got[i] = r.Quality
	}
	assert.Equal(t, want, got)
}

func TestRankStableForEqualScores(t *testing.T) {
	first := titled("Uprising", "Alpha", model.SourceVKAudio, "")
	first.ExternalID = "first"
	second := titled("Uprising", "Alpha", model.SourceVKAudio, "")
	second.ExternalID = "second"

	results := []model.SearchResult{first, second}
	Rank(results, "uprising")
	assert.Equal(t, "first", results[0].ExternalID)
	assert.Equal(t, "second", results[1].ExternalID)
}

func TestRankTokenOverlapRewardsPartialMatch(t *testing.T) {
	results := []model.SearchResult{
		titled("Disco Inferno", "The Trammps", model.SourceVKAudio, ""),
		titled("Night Fever", "Bee Gees", model.SourceVKAudio, ""),
	}
	Rank(results, "night fever disco")
	assert.Equal(t, []string{"Night Fever", "Disco Inferno"}, titles(results))
}

func TestRankDegenerateInputs(t *testing.T) {
	assert.NotPanics(t, func() { Rank(nil, "anything") })

	single := []model.SearchResult{titled("Solo", "One", model.SourceVKAudio, "")}
	Rank(single, "solo")
	assert.Equal(t, "Solo", single[0].Title)
}
