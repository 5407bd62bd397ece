package server

import (
	"net/http"

	"TrackHound/logger"
)

type clearCacheResponse struct {
	Pattern string `json:"pattern"`
	Cleared int    `json:"cleared"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.CacheStats())
}

func (s *Server) handleClearSearchCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	cleared, err := s.engine.ClearCachedSearches(r.Context(), pattern)
	if err != nil {
		s.log.Error("clearing search cache failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to clear search cache")
		return
	}
	s.log.Info("search cache cleared",
		logger.String("pattern", pattern),
		logger.Int("cleared", cleared))
	writeJSON(w, http.StatusOK, clearCacheResponse{Pattern: pattern, Cleared: cleared})
}
