package model

import (
	"strings"
	"time"
)

// TrackSource identifies the upstream catalog a result came from.
type TrackSource string

const (
	SourceVKAudio    TrackSource = "vk_audio"
	SourceYouTube    TrackSource = "youtube"
	SourceSpotify    TrackSource = "spotify"
	SourceSoundCloud TrackSource = "soundcloud"
	SourceDeezer     TrackSource = "deezer"
	SourceAppleMusic TrackSource = "apple_music"
	SourceLocal      TrackSource = "local"
)

// AudioQuality is a coarse bitrate tier. The string form is the nominal
// bitrate label shown to users.
type AudioQuality string

const (
	QualityLow    AudioQuality = "128kbps"
	QualityMedium AudioQuality = "192kbps"
	QualityHigh   AudioQuality = "256kbps"
	QualityUltra  AudioQuality = "320kbps"
)

// QualityRank orders tiers for ranking purposes (higher is better).
func QualityRank(q AudioQuality) int {
	switch q {
	case QualityUltra:
		return 3
	case QualityHigh:
		return 2
	case QualityMedium:
		return 1
	default:
		return 0
	}
}

// SearchResult is one track candidate produced by a source adapter.
// It is a value object: the aggregator and orchestrator copy it around
// but never mutate a result another goroutine may still hold.
type SearchResult struct {
	Title       string            `json:"title"`
	Artist      string            `json:"artist"`
	Album       string            `json:"album,omitempty"`
	Genre       string            `json:"genre,omitempty"`
	Year        int               `json:"year,omitempty"`
	Duration    int               `json:"duration,omitempty"` // seconds, 0 = unknown
	ExternalID  string            `json:"externalId"`
	URL         string            `json:"url,omitempty"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	CoverURL    string            `json:"coverUrl,omitempty"`
	Bitrate     int               `json:"bitrate,omitempty"` // kbps, 0 = unknown
	FileSize    int64             `json:"fileSize,omitempty"`
	Source      TrackSource       `json:"source"`
	Quality     AudioQuality      `json:"quality"`
	Explicit    bool              `json:"explicit,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DedupKey is the case-insensitive identity used when merging results
// from different sources.
func (r SearchResult) DedupKey() string {
	artist := strings.ToLower(strings.TrimSpace(r.Artist))
	title := strings.ToLower(strings.TrimSpace(r.Title))
	return artist + "|" + title
}

// DownloadResolution is a time-bounded playable location for a track.
// Never persisted beyond the cache tier.
type DownloadResolution struct {
	URL       string            `json:"url"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"` // nil = assume short-lived
	Format    string            `json:"format"`
	Bitrate   int               `json:"bitrate"`
	Headers   map[string]string `json:"headers,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the resolution is already past its expiry.
func (d *DownloadResolution) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// HealthStatus is the result of one adapter health probe.
type HealthStatus struct {
	Source    TrackSource `json:"source"`
	Healthy   bool        `json:"healthy"`
	LatencyMs int64       `json:"latencyMs"`
	Error     string      `json:"error,omitempty"`
	CheckedAt time.Time   `json:"checkedAt"`
}
