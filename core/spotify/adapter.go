// Package spotify adapts the metadata catalog. It enriches search results
// with clean tags and cover art but resolves no streams: every download
// request is answered with an unavailable error so callers fall through to
// a source that can actually serve bytes.
package spotify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"TrackHound/config"
	"TrackHound/core/request"
	"TrackHound/core/source"
	"TrackHound/logger"
	"TrackHound/model"
)

// Popular falls back to this query when the featured-playlist browse
// endpoint yields nothing.
const popularFallbackQuery = "top hits"

// Adapter implements source.Adapter over the metadata catalog.
type Adapter struct {
	client *client
	log    *zap.Logger
}

func New(cfg *config.Config) *Adapter {
	exec := request.New(request.Config{
		Source:            model.SourceSpotify,
		Timeout:           cfg.SpotifyTimeout,
		MaxAttempts:       cfg.HTTPMaxAttempts,
		RetryAfterDefault: cfg.HTTPRetryAfterDefault,
		RateLimit:         cfg.SpotifyRateLimit,
		RateWindow:        cfg.SpotifyRateWindow,
	})
	return &Adapter{
		client: &client{
			exec:     exec,
			apiBase:  defaultAPIBase,
			authBase: defaultAuthBase,
			id:       cfg.SpotifyClientID,
			secret:   cfg.SpotifyClientSecret,
			now:      time.Now,
		},
		log: logger.Named("spotify"),
	}
}

func (a *Adapter) Name() model.TrackSource {
	return model.SourceSpotify
}

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	tracks, err := a.client.searchTracks(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(tracks))
	for _, tr := range tracks {
		if r, ok := mapTrack(tr); ok {
			results = append(results, r)
		}
	}
	results = dedupe(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return source.FilterValid(results, source.ValidateOptions{MetadataOnly: true}), nil
}

// Popular takes tracks off the featured playlists, falling back to a
// popular-term search when browsing is empty or fails.
func (a *Adapter) Popular(ctx context.Context, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	playlists, err := a.client.featuredPlaylists(ctx, 3)
	if err != nil {
		a.log.Warn("featured playlists unavailable, falling back to search",
			logger.ErrorField(err))
		return a.Search(ctx, popularFallbackQuery, limit)
	}

	var results []model.SearchResult
	for _, pl := range playlists {
		if len(results) >= limit {
			break
		}
		tracks, err := a.client.playlistTracks(ctx, pl.ID, limit-len(results))
		if err != nil {
			a.log.Warn("playlist fetch failed",
				logger.String("playlist", pl.ID),
				logger.ErrorField(err))
			continue
		}
		for _, tr := range tracks {
			if r, ok := mapTrack(tr); ok {
				results = append(results, r)
			}
		}
	}

	if len(results) == 0 {
		return a.Search(ctx, popularFallbackQuery, limit)
	}
	results = dedupe(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return source.FilterValid(results, source.ValidateOptions{MetadataOnly: true}), nil
}

// ResolveDownload always refuses: the catalog licenses metadata, not audio.
func (a *Adapter) ResolveDownload(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
	return nil, source.E(model.SourceSpotify, "spotify:resolve", source.KindUnavailable,
		fmt.Errorf("metadata-only catalog, no stream for %s", externalID))
}

// HealthCheck times a one-result search.
func (a *Adapter) HealthCheck(ctx context.Context) model.HealthStatus {
	start := time.Now()
	_, err := a.Search(ctx, "test", 1)
	status := model.HealthStatus{
		Source:    model.SourceSpotify,
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func mapTrack(tr track) (model.SearchResult, bool) {
	name := strings.TrimSpace(tr.Name)
	if tr.ID == "" || name == "" || len(tr.Artists) == 0 {
		return model.SearchResult{}, false
	}

	names := make([]string, 0, len(tr.Artists))
	for _, ar := range tr.Artists {
		names = append(names, ar.Name)
	}

	r := model.SearchResult{
		Title:      name,
		Artist:     strings.Join(names, ", "),
		Album:      strings.TrimSpace(tr.Album.Name),
		Duration:   tr.DurationMS / 1000,
		ExternalID: tr.ID,
		URL:        tr.ExternalURLs["spotify"],
		Source:     model.SourceSpotify,
		Quality:    model.QualityMedium,
		Explicit:   tr.Explicit,
		Metadata: map[string]string{
			"spotify_id": tr.ID,
			"popularity": strconv.Itoa(tr.Popularity),
			"origin":     "api",
		},
	}
	if len(tr.Album.Images) > 0 {
		r.CoverURL = tr.Album.Images[0].URL
	}
	if len(tr.Album.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(tr.Album.ReleaseDate[:4]); err == nil {
			r.Year = y
		}
	}
	if tr.PreviewURL != "" {
		r.Metadata["preview_url"] = tr.PreviewURL
	}
	return r, true
}

func dedupe(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		key := r.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
