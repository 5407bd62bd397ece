package search

import (
	"context"

	"TrackHound/core/source"
	"TrackHound/logger"
	"TrackHound/model"
)

const (
	defaultTrendingLimit = 20

	// One shared trending page for everyone; the cache TTL decides how
	// stale it may get.
	trendingKey = "global"
)

// Trending returns popular tracks merged across sources. The page is
// shared and cached; forceRefresh bypasses the cached copy and
// rebuilds it. A dead upstream yields an empty page, not an error.
func (s *Service) Trending(ctx context.Context, limit int, forceRefresh bool) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = defaultTrendingLimit
	}

	if !forceRefresh && s.tracks != nil {
		if hit, ok := s.tracks.GetTrending(ctx, trendingKey); ok {
			if len(hit) > limit {
				hit = hit[:limit]
			}
			return hit, nil
		}
	}

	results, err := s.agg.Popular(ctx, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("refreshing trending failed", logger.ErrorField(err))
		return []model.SearchResult{}, nil
	}

	results = source.FilterValid(results, source.ValidateOptions{MetadataOnly: true})
	Rank(results, "")

	if s.tracks != nil && len(results) > 0 {
		if err := s.tracks.SetTrending(ctx, trendingKey, results); err != nil {
			s.log.Warn("caching trending failed", logger.ErrorField(err))
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
