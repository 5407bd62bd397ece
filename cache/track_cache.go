package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"TrackHound/model"
)

// CachedSearch is the payload stored for a completed aggregated search.
type CachedSearch struct {
	Results     []model.SearchResult `json:"results"`
	TotalFound  int                  `json:"totalFound"`
	SourcesUsed []string             `json:"sourcesUsed"`
}

// TrackCache wraps the two-tier cache with track-domain keys and payloads.
type TrackCache struct {
	store *TwoTier
}

func NewTrackCache(store *TwoTier) *TrackCache {
	return &TrackCache{store: store}
}

// SearchKey derives the cache key for a normalized query. Source order must
// not matter, so sources are sorted before joining.
func SearchKey(normalizedQuery string, sources []model.TrackSource, limit int) string {
	sum := md5.Sum([]byte(normalizedQuery))
	srcPart := "all"
	if len(sources) > 0 {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = string(s)
		}
		sort.Strings(names)
		srcPart = strings.Join(names, ",")
	}
	return fmt.Sprintf("%s:%s:%d", hex.EncodeToString(sum[:]), srcPart, limit)
}

func (t *TrackCache) GetSearch(ctx context.Context, key string) (*CachedSearch, bool) {
	var cached CachedSearch
	ok, err := t.store.Get(ctx, TypeTrackSearch, key, &cached)
	if err != nil || !ok {
		return nil, false
	}
	return &cached, true
}

func (t *TrackCache) SetSearch(ctx context.Context, key string, value CachedSearch) error {
	return t.store.Set(ctx, TypeTrackSearch, key, value)
}

func downloadKey(source model.TrackSource, externalID string) string {
	return fmt.Sprintf("%s:%s", source, externalID)
}

// GetDownload returns a cached resolution, dropping it when expired.
func (t *TrackCache) GetDownload(ctx context.Context, source model.TrackSource, externalID string) (*model.DownloadResolution, bool) {
	var res model.DownloadResolution
	ok, err := t.store.Get(ctx, TypeDownloadURL, downloadKey(source, externalID), &res)
	if err != nil || !ok {
		return nil, false
	}
	if res.Expired(time.Now()) {
		_ = t.DeleteDownload(ctx, source, externalID)
		return nil, false
	}
	return &res, true
}

// SetDownload caches a resolution, clamping the TTL so the entry never
// outlives the URL itself. Already-expired resolutions are not cached.
func (t *TrackCache) SetDownload(ctx context.Context, source model.TrackSource, externalID string, res *model.DownloadResolution) error {
	ttl := t.store.TTLFor(TypeDownloadURL)
	if res.ExpiresAt != nil {
		remaining := time.Until(*res.ExpiresAt)
		if remaining <= 0 {
			return nil
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	return t.store.SetWithTTL(ctx, TypeDownloadURL, downloadKey(source, externalID), res, ttl)
}

func (t *TrackCache) DeleteDownload(ctx context.Context, source model.TrackSource, externalID string) error {
	return t.store.Delete(ctx, TypeDownloadURL, downloadKey(source, externalID))
}

// ArchivedTrack records where a track's archived copy lives and the
// presigned URL last handed out for it.
type ArchivedTrack struct {
	ObjectKey  string    `json:"objectKey"`
	URL        string    `json:"url"`
	Format     string    `json:"format"`
	ArchivedAt time.Time `json:"archivedAt"`
}

func (t *TrackCache) GetArchived(ctx context.Context, source model.TrackSource, externalID string) (*ArchivedTrack, bool) {
	var info ArchivedTrack
	ok, err := t.store.Get(ctx, TypeTrackInfo, downloadKey(source, externalID), &info)
	if err != nil || !ok {
		return nil, false
	}
	return &info, true
}

func (t *TrackCache) SetArchived(ctx context.Context, source model.TrackSource, externalID string, info *ArchivedTrack) error {
	return t.store.Set(ctx, TypeTrackInfo, downloadKey(source, externalID), info)
}

func (t *TrackCache) DeleteArchived(ctx context.Context, source model.TrackSource, externalID string) error {
	return t.store.Delete(ctx, TypeTrackInfo, downloadKey(source, externalID))
}

func (t *TrackCache) GetTrending(ctx context.Context, key string) ([]model.SearchResult, bool) {
	var results []model.SearchResult
	ok, err := t.store.Get(ctx, TypeTrending, key, &results)
	if err != nil || !ok {
		return nil, false
	}
	return results, true
}

func (t *TrackCache) SetTrending(ctx context.Context, key string, results []model.SearchResult) error {
	return t.store.Set(ctx, TypeTrending, key, results)
}

func (t *TrackCache) GetHealth(ctx context.Context, source model.TrackSource) (*model.HealthStatus, bool) {
	var status model.HealthStatus
	ok, err := t.store.Get(ctx, TypeHealthCheck, string(source), &status)
	if err != nil || !ok {
		return nil, false
	}
	return &status, true
}

func (t *TrackCache) SetHealth(ctx context.Context, status model.HealthStatus) error {
	return t.store.Set(ctx, TypeHealthCheck, string(status.Source), status)
}

// ClearSearches drops cached search pages matching the glob pattern,
// defaulting to everything.
func (t *TrackCache) ClearSearches(ctx context.Context, pattern string) (int, error) {
	return t.store.ClearByPattern(ctx, TypeTrackSearch, pattern)
}

func (t *TrackCache) Stats() Stats {
	return t.store.Stats()
}
