// Package search is the orchestration layer between the API surface
// and the source aggregator: it normalizes and corrects queries,
// serves cached pages, ranks merged results, and records history and
// suggestion signals off the request path.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"TrackHound/cache"
	"TrackHound/core/aggregate"
	"TrackHound/core/source"
	"TrackHound/logger"
	"TrackHound/model"
)

const (
	defaultSearchLimit = 10
	defaultTimeout     = 30 * time.Second

	// Sources are fetched wider than the requested page so dedupe and
	// validation do not starve the final cut.
	fetchFactor = 3

	sinkTimeout    = 5 * time.Second
	archiveTimeout = 2 * time.Minute
)

// HistoryStore persists per-user search history.
type HistoryStore interface {
	Save(ctx context.Context, entry *model.SearchHistory) error
	Recent(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error)
	PopularToday(ctx context.Context, limit int) ([]model.PopularSearch, error)
}

// SuggestionStore tracks query popularity for prefix suggestions.
type SuggestionStore interface {
	Bump(ctx context.Context, query string) error
	ByPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Archiver copies a freshly resolved stream into long-term storage and
// serves back copies it already holds.
type Archiver interface {
	Archive(ctx context.Context, src model.TrackSource, externalID string, res *model.DownloadResolution) error
	Resolution(ctx context.Context, src model.TrackSource, externalID string) (*model.DownloadResolution, bool)
}

// Options wires the service's collaborators. Everything except the
// aggregator is optional: a nil store or cache degrades that feature
// to a no-op instead of failing searches.
type Options struct {
	Tracks      *cache.TrackCache
	History     HistoryStore
	Suggestions SuggestionStore
	Archiver    Archiver
	Corrections *Corrections
	Pool        *Pool
	Timeout     time.Duration
}

// Service orchestrates one search end to end.
type Service struct {
	agg         *aggregate.Aggregator
	tracks      *cache.TrackCache
	history     HistoryStore
	suggestions SuggestionStore
	archiver    Archiver
	corrections *Corrections
	pool        *Pool
	timeout     time.Duration
	log         *zap.Logger
}

func New(agg *aggregate.Aggregator, opts Options) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		agg:         agg,
		tracks:      opts.Tracks,
		history:     opts.History,
		suggestions: opts.Suggestions,
		archiver:    opts.Archiver,
		corrections: opts.Corrections,
		pool:        opts.Pool,
		timeout:     timeout,
		log:         logger.Named("search"),
	}
}

// Search runs the full pipeline: normalize, correct, cache lookup,
// fan-out, validate, rank, cache write, history. Degradation never
// surfaces as an error; an empty query or a dead upstream both come
// back as an empty page with suggestions. The only error returned is
// the caller's own context expiring.
func (s *Service) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	started := time.Now()

	normalized := Normalize(req.Query)
	if normalized == "" {
		return s.degraded(ctx, "", started), nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	cacheKey := cache.SearchKey(normalized, req.Sources, limit)
	if req.UseCache && s.tracks != nil {
		if hit, ok := s.tracks.GetSearch(ctx, cacheKey); ok {
			return cachedResponse(hit, started), nil
		}
	}

	searchQuery := normalized
	var correctedQuery string
	if s.corrections != nil {
		if corrected, ok := s.corrections.Apply(normalized); ok {
			searchQuery = corrected
			correctedQuery = corrected
			s.log.Debug("query corrected",
				logger.String("from", normalized), logger.String("to", corrected))
		}
	}

	results, err := s.agg.Search(ctx, searchQuery, limit*fetchFactor, req.Strategy, req.Sources, s.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("aggregated search failed",
			logger.String("query", searchQuery), logger.ErrorField(err))
		resp := s.degraded(ctx, normalized, started)
		resp.CorrectedQuery = correctedQuery
		return resp, nil
	}

	// Per-source duration floors were already applied at the adapter
	// boundary; re-validating here must not undo the metadata-only
	// carve-out, so the floor stays off.
	results = source.FilterValid(results, source.ValidateOptions{MetadataOnly: true})
	Rank(results, searchQuery)

	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}
	sourcesUsed := distinctSources(results)

	resp := &model.SearchResponse{
		Results:        results,
		TotalFound:     total,
		ElapsedMs:      time.Since(started).Milliseconds(),
		SourcesUsed:    sourcesUsed,
		CorrectedQuery: correctedQuery,
	}
	if total == 0 {
		resp.Suggestions = s.Suggestions(ctx, normalized)
	}

	if req.UseCache && s.tracks != nil && total > 0 {
		entry := cache.CachedSearch{
			Results:     results,
			TotalFound:  total,
			SourcesUsed: sourceNames(sourcesUsed),
		}
		if err := s.tracks.SetSearch(ctx, cacheKey, entry); err != nil {
			s.log.Warn("caching search results failed", logger.ErrorField(err))
		}
	}

	s.recordSearch(req.UserID, req.Query, normalized, total, sourcesUsed, time.Since(started))
	return resp, nil
}

// StreamSearch fans the query out and hands each source's batch to
// emit as it lands, then returns the final ranked page. Streaming
// always goes live past the cache; history is still recorded.
func (s *Service) StreamSearch(ctx context.Context, req model.SearchRequest, emit func(src model.TrackSource, results []model.SearchResult, err error)) (*model.SearchResponse, error) {
	started := time.Now()

	normalized := Normalize(req.Query)
	if normalized == "" {
		return s.degraded(ctx, "", started), nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	searchQuery := normalized
	var correctedQuery string
	if s.corrections != nil {
		if corrected, ok := s.corrections.Apply(normalized); ok {
			searchQuery = corrected
			correctedQuery = corrected
		}
	}

	var merged []model.SearchResult
	err := s.agg.SearchEach(ctx, searchQuery, limit*fetchFactor, req.Sources, s.timeout,
		func(src model.TrackSource, results []model.SearchResult, err error) {
			if err == nil {
				merged = append(merged, results...)
			}
			emit(src, results, err)
		})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	merged = dedupe(merged)
	merged = source.FilterValid(merged, source.ValidateOptions{MetadataOnly: true})
	Rank(merged, searchQuery)

	total := len(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	sourcesUsed := distinctSources(merged)

	resp := &model.SearchResponse{
		Results:        merged,
		TotalFound:     total,
		ElapsedMs:      time.Since(started).Milliseconds(),
		SourcesUsed:    sourcesUsed,
		CorrectedQuery: correctedQuery,
	}
	if total == 0 {
		resp.Suggestions = s.Suggestions(ctx, normalized)
	}

	s.recordSearch(req.UserID, req.Query, normalized, total, sourcesUsed, time.Since(started))
	return resp, nil
}

// ResolveDownload resolves a playable URL through the aggregator and,
// for fresh resolutions, queues an archival copy in the background. A
// track the upstream no longer serves falls back to its archived copy.
func (s *Service) ResolveDownload(ctx context.Context, src model.TrackSource, externalID string) (*model.DownloadResolution, error) {
	res, fromCache, err := s.agg.Resolve(ctx, src, externalID)
	if err != nil {
		if s.archiver != nil && (source.IsNotFound(err) || source.IsUnavailable(err)) {
			if archived, ok := s.archiver.Resolution(ctx, src, externalID); ok {
				s.log.Info("serving archived copy",
					logger.String("source", string(src)),
					logger.String("externalId", externalID))
				return archived, nil
			}
		}
		return nil, err
	}
	if !fromCache && s.archiver != nil && s.pool != nil {
		s.pool.Submit(func() {
			actx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := s.archiver.Archive(actx, src, externalID, res); err != nil {
				s.log.Warn("archiving resolved track failed",
					logger.String("source", string(src)),
					logger.String("externalId", externalID),
					logger.ErrorField(err))
			}
		})
	}
	return res, nil
}

// InvalidateDownload drops a cached resolution so the next request
// re-resolves it upstream.
func (s *Service) InvalidateDownload(ctx context.Context, src model.TrackSource, externalID string) error {
	return s.agg.InvalidateDownload(ctx, src, externalID)
}

// RecentSearches returns the user's latest queries, newest first.
func (s *Service) RecentSearches(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error) {
	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.history.Recent(ctx, userID, limit)
}

// PopularSearches returns today's most repeated queries.
func (s *Service) PopularSearches(ctx context.Context, limit int) ([]model.PopularSearch, error) {
	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return s.history.PopularToday(ctx, limit)
}

// HealthCheck probes every registered source and returns the statuses.
func (s *Service) HealthCheck(ctx context.Context) []model.HealthStatus {
	return s.agg.HealthCheck(ctx)
}

// SourceHealth reports the tracker's current view without probing.
func (s *Service) SourceHealth() []aggregate.HealthSnapshot {
	return s.agg.Health()
}

// CacheStats exposes hit/miss counters for the admin surface.
func (s *Service) CacheStats() cache.Stats {
	if s.tracks == nil {
		return cache.Stats{}
	}
	return s.tracks.Stats()
}

// ClearCachedSearches drops cached search pages matching the pattern.
func (s *Service) ClearCachedSearches(ctx context.Context, pattern string) (int, error) {
	if s.tracks == nil {
		return 0, nil
	}
	return s.tracks.ClearSearches(ctx, pattern)
}

// Close flushes background work. Call it on shutdown, after the last
// request has finished.
func (s *Service) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.corrections != nil {
		return s.corrections.Close()
	}
	return nil
}

// degraded is the uniform shape for "nothing to return": empty page,
// suggestions when the prefix allows them, never an error.
func (s *Service) degraded(ctx context.Context, normalized string, started time.Time) *model.SearchResponse {
	return &model.SearchResponse{
		Results:     []model.SearchResult{},
		TotalFound:  0,
		ElapsedMs:   time.Since(started).Milliseconds(),
		SourcesUsed: []model.TrackSource{},
		Suggestions: s.Suggestions(ctx, normalized),
	}
}

func cachedResponse(hit *cache.CachedSearch, started time.Time) *model.SearchResponse {
	sources := make([]model.TrackSource, len(hit.SourcesUsed))
	for i, name := range hit.SourcesUsed {
		sources[i] = model.TrackSource(name)
	}
	return &model.SearchResponse{
		Results:     hit.Results,
		TotalFound:  hit.TotalFound,
		ElapsedMs:   time.Since(started).Milliseconds(),
		SourcesUsed: sources,
		Cached:      true,
	}
}

// recordSearch pushes history and suggestion updates through the
// worker pool so persistence latency never shows up in a search.
func (s *Service) recordSearch(userID int64, raw, normalized string, resultCount int, sources []model.TrackSource, took time.Duration) {
	if s.pool == nil {
		return
	}
	if s.history != nil && userID != 0 {
		entry := &model.SearchHistory{
			UserID:          userID,
			Query:           capRunes(raw, 255),
			NormalizedQuery: normalized,
			ResultCount:     resultCount,
			SourcesUsed:     strings.Join(sourceNames(sources), ","),
			TookMs:          took.Milliseconds(),
		}
		s.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := s.history.Save(ctx, entry); err != nil {
				s.log.Warn("saving search history failed", logger.ErrorField(err))
			}
		})
	}
	if s.suggestions != nil && resultCount > 0 && len([]rune(normalized)) >= 2 {
		s.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := s.suggestions.Bump(ctx, normalized); err != nil {
				s.log.Warn("bumping suggestion failed", logger.ErrorField(err))
			}
		})
	}
}

func distinctSources(results []model.SearchResult) []model.TrackSource {
	seen := make(map[model.TrackSource]struct{}, 4)
	out := make([]model.TrackSource, 0, 4)
	for _, r := range results {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}

func sourceNames(sources []model.TrackSource) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}

func capRunes(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}

// dedupe keeps the first result per artist/title pair.
func dedupe(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		key := r.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
