// Package youtube adapts a video catalog into the track engine: the official
// Data API finds candidates, a local yt-dlp engine fills gaps and resolves
// streams.
package youtube

import (
	"context"
	"errors"
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

// Video-catalog noise bounds: shorter than 30s is a preview or sting,
// longer than 15min is a mix or full concert.
const (
	minVideoDuration = 30
	maxVideoDuration = 900
)

var trendingQueries = []string{
	"trending music", "top songs this week", "new releases", "viral songs",
}

// Adapter implements source.Adapter over the video catalog.
type Adapter struct {
	client  *client
	extract extractor
	log     *zap.Logger
}

func New(cfg *config.Config) *Adapter {
	exec := request.New(request.Config{
		Source:            model.SourceYouTube,
		Timeout:           cfg.YouTubeTimeout,
		MaxAttempts:       cfg.HTTPMaxAttempts,
		RetryAfterDefault: cfg.HTTPRetryAfterDefault,
		RateLimit:         cfg.YouTubeRateLimit,
		RateWindow:        cfg.YouTubeRateWindow,
	})
	return &Adapter{
		client:  &client{exec: exec, apiBase: defaultAPIBase, key: cfg.YouTubeAPIKey},
		extract: newExtractor(cfg.YTDLPPath, cfg.YouTubeTimeout),
		log:     logger.Named("youtube"),
	}
}

func (a *Adapter) Name() model.TrackSource {
	return model.SourceYouTube
}

// Search suffixes the query with "audio" to bias the catalog toward tracks,
// then runs the API tier and tops up from local extraction. Either tier may
// fail as long as one delivers.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	musicQuery := query + " audio"

	var results []model.SearchResult
	tiersRun, tiersFailed := 0, 0
	var lastErr error

	if a.client.key != "" {
		tiersRun++
		items, err := a.client.searchVideos(ctx, musicQuery, limit)
		if err != nil {
			tiersFailed++
			lastErr = err
			a.log.Warn("api search tier failed",
				logger.String("query", query),
				logger.ErrorField(err))
		} else {
			for _, item := range items {
				if r, ok := a.mapSearchItem(item); ok {
					results = append(results, r)
				}
			}
		}
	}

	if len(results) < limit {
		tiersRun++
		entries, err := a.extract.search(ctx, musicQuery, limit-len(results))
		if err != nil {
			tiersFailed++
			lastErr = err
			a.log.Warn("extraction search tier failed",
				logger.String("query", query),
				logger.ErrorField(err))
		} else {
			for _, e := range entries {
				if r, ok := a.mapEntry(e); ok {
					results = append(results, r)
				}
			}
		}
	}

	if len(results) == 0 && tiersFailed == tiersRun && tiersFailed > 0 {
		return nil, a.wrap("youtube:search", lastErr)
	}

	results = dedupe(results)
	results = filterDuration(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return source.FilterValid(results, source.ValidateOptions{}), nil
}

// Popular reads the music chart when an API key is configured, otherwise
// fans canned queries out over the extraction engine.
func (a *Adapter) Popular(ctx context.Context, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	if a.client.key != "" {
		videos, err := a.client.popularVideos(ctx, limit)
		if err == nil {
			var results []model.SearchResult
			for _, v := range videos {
				if r, ok := a.mapVideoItem(v); ok {
					results = append(results, r)
				}
			}
			results = filterDuration(dedupe(results))
			if len(results) > limit {
				results = results[:limit]
			}
			return results, nil
		}
		a.log.Warn("chart fetch failed, falling back to extraction",
			logger.ErrorField(err))
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

// ResolveDownload extracts the video's format table and returns the best
// audio-only stream. Stream URLs are CDN-signed for the extracting client,
// so the response pins the extractor's User-Agent.
func (a *Adapter) ResolveDownload(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, source.E(model.SourceYouTube, "youtube:resolve", source.KindNotFound,
			fmt.Errorf("empty video id"))
	}

	info, err := a.extract.videoInfo(ctx, watchBase+"/watch?v="+externalID)
	if err != nil {
		return nil, source.E(model.SourceYouTube, "youtube:resolve", source.KindUnavailable, err)
	}

	best := bestAudioFormat(info.Formats)
	if best == nil || best.URL == "" {
		return nil, source.E(model.SourceYouTube, "youtube:resolve", source.KindUnavailable,
			fmt.Errorf("no audio stream for %s", externalID))
	}

	bitrate := int(best.ABR)
	if bitrate <= 0 {
		bitrate = 128
	}
	format := "mp3"
	if best.Ext == "webm" || best.Ext == "m4a" {
		format = best.Ext
	}

	expires := time.Now().Add(resolutionTTL)
	return &model.DownloadResolution{
		URL:       best.URL,
		ExpiresAt: &expires,
		Format:    format,
		Bitrate:   bitrate,
		Headers:   map[string]string{"User-Agent": extractorUserAgent},
		Metadata: map[string]string{
			"youtube_id": externalID,
			"format_id":  best.FormatID,
			"origin":     "ytdlp",
		},
	}, nil
}

// HealthCheck times a one-result search.
func (a *Adapter) HealthCheck(ctx context.Context) model.HealthStatus {
	start := time.Now()
	_, err := a.Search(ctx, "test music", 1)
	status := model.HealthStatus{
		Source:    model.SourceYouTube,
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// wrap guarantees typed errors even when the failing tier was the local
// extraction engine, which returns plain subprocess errors.
func (a *Adapter) wrap(op string, err error) error {
	var se *source.Error
	if errors.As(err, &se) {
		return err
	}
	return source.E(model.SourceYouTube, op, source.KindUnknown, err)
}

func (a *Adapter) mapSearchItem(item searchItem) (model.SearchResult, bool) {
	artist, track, ok := splitTitle(item.Snippet.Title, item.Snippet.ChannelTitle)
	if !ok || item.ID.VideoID == "" {
		return model.SearchResult{}, false
	}

	r := model.SearchResult{
		Title:      track,
		Artist:     artist,
		ExternalID: item.ID.VideoID,
		URL:        watchBase + "/watch?v=" + item.ID.VideoID,
		CoverURL:   item.Snippet.Thumbnails.best(),
		Source:     model.SourceYouTube,
		Quality:    model.QualityMedium,
		Metadata: map[string]string{
			"youtube_id":    item.ID.VideoID,
			"channel_title": item.Snippet.ChannelTitle,
			"origin":        "api",
		},
	}
	if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		r.Year = t.Year()
	}
	return r, true
}

func (a *Adapter) mapEntry(e ytdlpEntry) (model.SearchResult, bool) {
	artist, track, ok := splitTitle(e.Title, e.Uploader)
	if !ok || e.ID == "" {
		return model.SearchResult{}, false
	}

	r := model.SearchResult{
		Title:      track,
		Artist:     artist,
		Duration:   int(e.Duration),
		ExternalID: e.ID,
		URL:        watchBase + "/watch?v=" + e.ID,
		CoverURL:   e.Thumbnail,
		Source:     model.SourceYouTube,
		Quality:    model.QualityMedium,
		Metadata: map[string]string{
			"youtube_id": e.ID,
			"uploader":   e.Uploader,
			"origin":     "ytdlp",
		},
	}
	if t, err := time.Parse("20060102", e.UploadDate); err == nil {
		r.Year = t.Year()
	}
	if e.ViewCount > 0 {
		r.Metadata["view_count"] = strconv.FormatInt(e.ViewCount, 10)
	}
	return r, true
}

func (a *Adapter) mapVideoItem(v videoItem) (model.SearchResult, bool) {
	artist, track, ok := splitTitle(v.Snippet.Title, v.Snippet.ChannelTitle)
	if !ok || v.ID == "" {
		return model.SearchResult{}, false
	}

	r := model.SearchResult{
		Title:      track,
		Artist:     artist,
		Duration:   parseISODuration(v.ContentDetails.Duration),
		ExternalID: v.ID,
		URL:        watchBase + "/watch?v=" + v.ID,
		CoverURL:   v.Snippet.Thumbnails.best(),
		Source:     model.SourceYouTube,
		Quality:    model.QualityMedium,
		Metadata: map[string]string{
			"youtube_id":    v.ID,
			"channel_title": v.Snippet.ChannelTitle,
			"origin":        "chart",
		},
	}
	if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
		r.Year = t.Year()
	}
	return r, true
}

// dedupe drops repeats by video id and by artist|title identity.
func dedupe(results []model.SearchResult) []model.SearchResult {
	seenIDs := make(map[string]struct{}, len(results))
	seenKeys := make(map[string]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		if _, dup := seenIDs[r.ExternalID]; dup {
			continue
		}
		key := r.DedupKey()
		if _, dup := seenKeys[key]; dup {
			continue
		}
		seenIDs[r.ExternalID] = struct{}{}
		seenKeys[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// filterDuration drops clips outside the track window when the duration is
// known; unknown durations pass (the API tier reports none).
func filterDuration(results []model.SearchResult) []model.SearchResult {
	out := results[:0]
	for _, r := range results {
		if r.Duration > 0 && (r.Duration < minVideoDuration || r.Duration > maxVideoDuration) {
			continue
		}
		out = append(out, r)
	}
	return out
}
