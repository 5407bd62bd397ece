package vkaudio

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

const resolutionTTL = 6 * time.Hour

// nominalBitrate is what VK serves for the vast majority of tracks.
const nominalBitrate = 192

var trendingQueries = []string{
	"top hits 2024", "new music", "popular songs", "viral hits", "best tracks",
}

// Adapter searches VK Audio by scraping the mobile site, topping up from
// the authenticated API when a token is configured.
type Adapter struct {
	client *client
	probe  func(ctx context.Context, rawURL string) bool
	log    *zap.Logger
}

func New(cfg *config.Config) *Adapter {
	exec := request.New(request.Config{
		Source:            model.SourceVKAudio,
		Timeout:           cfg.VKTimeout,
		MaxAttempts:       cfg.HTTPMaxAttempts,
		RetryAfterDefault: cfg.HTTPRetryAfterDefault,
		RateLimit:         cfg.VKRateLimit,
		RateWindow:        cfg.VKRateWindow,
		WithBreaker:       true,
	})
	p := &prober{exec: exec}
	return &Adapter{
		client: &client{
			exec:       exec,
			apiBase:    cfg.VKAPIBase,
			webBase:    webBase,
			mobileBase: mobileBase,
			token:      cfg.VKToken,
		},
		probe: p.validate,
		log:   logger.Named("vkaudio"),
	}
}

func (a *Adapter) Name() model.TrackSource {
	return model.SourceVKAudio
}

// Search runs the scrape tier first and fills up from the API tier. A tier
// failure is tolerated as long as any tier delivered.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var results []model.SearchResult
	tiersRun, tiersFailed := 0, 0
	var lastErr error

	tiersRun++
	mobile, err := a.searchMobile(ctx, query)
	if err != nil {
		tiersFailed++
		lastErr = err
		a.log.Warn("mobile search tier failed",
			logger.String("query", query),
			logger.ErrorField(err))
	} else {
		results = append(results, mobile...)
	}

	if len(results) < limit && a.client.token != "" {
		tiersRun++
		items, err := a.client.searchAudio(ctx, query, limit-len(results))
		if err != nil {
			tiersFailed++
			lastErr = err
			a.log.Warn("api search tier failed",
				logger.String("query", query),
				logger.ErrorField(err))
		} else {
			for _, item := range items {
				results = append(results, a.mapItem(item))
			}
		}
	}

	if len(results) == 0 && tiersFailed == tiersRun && tiersFailed > 0 {
		return nil, lastErr
	}

	results = dedupe(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return source.FilterValid(results, source.ValidateOptions{}), nil
}

func (a *Adapter) searchMobile(ctx context.Context, query string) ([]model.SearchResult, error) {
	pageHTML, err := a.client.fetchMobileSearch(ctx, query)
	if err != nil {
		return nil, err
	}
	return parseMobileResults(pageHTML), nil
}

// Popular approximates a trending feed by fanning canned queries out over
// the search tiers; VK has no public chart endpoint.
func (a *Adapter) Popular(ctx context.Context, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	perQuery := limit / len(trendingQueries)
	if perQuery < 1 {
		perQuery = 1
	}

	var all []model.SearchResult
	var lastErr error
	for _, q := range trendingQueries {
		results, err := a.Search(ctx, q, perQuery)
		if err != nil {
			lastErr = err
			a.log.Warn("trending query failed",
				logger.String("query", q),
				logger.ErrorField(err))
			continue
		}
		all = append(all, results...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	all = dedupe(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ResolveDownload turns an external id into a playable URL: the API copy
// when present, otherwise candidates scraped off the public track page and
// decoded until one survives the probe.
func (a *Adapter) ResolveDownload(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
	parts := strings.Split(externalID, "_")
	if len(parts) != 2 {
		return nil, source.E(model.SourceVKAudio, "vk:resolve", source.KindNotFound,
			fmt.Errorf("invalid external id format: %q", externalID))
	}
	ownerID, audioID := parts[0], parts[1]

	if a.client.token != "" {
		item, err := a.client.audioByID(ctx, ownerID, audioID)
		if err == nil && item.URL != "" {
			if decoded, ok := DecodeURL(item.URL); ok {
				return a.resolution(decoded, ownerID, audioID, "api"), nil
			}
		}
		if err != nil && !source.IsNotFound(err) && !source.IsUnavailable(err) {
			a.log.Warn("api resolve failed, falling back to scrape",
				logger.String("externalId", externalID),
				logger.ErrorField(err))
		}
	}

	pageHTML, err := a.client.fetchTrackPage(ctx, externalID)
	if err != nil {
		return nil, err
	}

	for _, encoded := range extractStreamCandidates(pageHTML) {
		for _, candidate := range decodeCandidates(encoded) {
			if a.probe(ctx, candidate) {
				return a.resolution(candidate, ownerID, audioID, "scrape"), nil
			}
		}
	}

	return nil, source.E(model.SourceVKAudio, "vk:resolve", source.KindUnavailable,
		fmt.Errorf("download URL not available for %s", externalID))
}

func (a *Adapter) resolution(streamURL, ownerID, audioID, origin string) *model.DownloadResolution {
	expires := time.Now().Add(resolutionTTL)
	return &model.DownloadResolution{
		URL:       streamURL,
		ExpiresAt: &expires,
		Format:    "mp3",
		Bitrate:   nominalBitrate,
		Metadata: map[string]string{
			"vk_id":    audioID,
			"owner_id": ownerID,
			"origin":   origin,
		},
	}
}

// HealthCheck times a one-result search.
func (a *Adapter) HealthCheck(ctx context.Context) model.HealthStatus {
	start := time.Now()
	_, err := a.Search(ctx, "test", 1)
	status := model.HealthStatus{
		Source:    model.SourceVKAudio,
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// mapItem converts an API item to the engine shape.
func (a *Adapter) mapItem(item audioItem) model.SearchResult {
	externalID := fmt.Sprintf("%d_%d", item.OwnerID, item.ID)

	result := model.SearchResult{
		Title:      strings.TrimSpace(item.Title),
		Artist:     strings.TrimSpace(item.Artist),
		Duration:   item.Duration,
		ExternalID: externalID,
		URL:        webBase + "/audio" + externalID,
		Source:     model.SourceVKAudio,
		Quality:    qualityFromURL(item.URL),
		Genre:      genreName(item.GenreID),
		Explicit:   item.IsExplicit,
		Metadata: map[string]string{
			"vk_id":    strconv.FormatInt(item.ID, 10),
			"owner_id": strconv.FormatInt(item.OwnerID, 10),
			"origin":   "api",
		},
	}

	if item.URL != "" {
		if decoded, ok := DecodeURL(item.URL); ok {
			result.DownloadURL = decoded
		}
	}
	if item.Album != nil {
		result.Album = item.Album.Title
		if item.Album.Thumb != nil {
			result.CoverURL = item.Album.Thumb.Photo600
		}
	}
	if item.Date > 0 {
		result.Year = time.Unix(item.Date, 0).UTC().Year()
	}
	return result
}

// qualityFromURL reads the quality hints VK embeds in stream URLs.
func qualityFromURL(streamURL string) model.AudioQuality {
	switch {
	case strings.Contains(streamURL, "quality=1") || strings.Contains(streamURL, "hq=1"):
		return model.QualityHigh
	case strings.Contains(streamURL, "quality=0"):
		return model.QualityLow
	default:
		return model.QualityMedium
	}
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
