package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"TrackHound/logger"
	"TrackHound/model"
)

type trendingResponse struct {
	Results []model.SearchResult `json:"results"`
	Count   int                  `json:"count"`
}

type suggestResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

type historyResponse struct {
	History []model.SearchHistory `json:"history"`
}

type popularResponse struct {
	Popular []model.PopularSearch `json:"popular"`
}

// handleSearch runs one aggregated search. useCache defaults to true when
// the field is absent from the body.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := model.SearchRequest{UseCache: true}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	req.Strategy = s.pickStrategy(string(req.Strategy))

	resp, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 0)
	refresh := boolQuery(r, "refresh")

	results, err := s.engine.Trending(r.Context(), limit, refresh)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	writeJSON(w, http.StatusOK, trendingResponse{Results: results, Count: len(results)})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	suggestions := s.engine.Suggestions(r.Context(), q)
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, suggestResponse{Query: q, Suggestions: suggestions})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := int64Query(r, "userId", 0)
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	rows, err := s.engine.RecentSearches(r.Context(), userID, intQuery(r, "limit", 0))
	if err != nil {
		s.log.Error("loading search history failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if rows == nil {
		rows = []model.SearchHistory{}
	}
	writeJSON(w, http.StatusOK, historyResponse{History: rows})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.PopularSearches(r.Context(), intQuery(r, "limit", 0))
	if err != nil {
		s.log.Error("loading popular searches failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load popular searches")
		return
	}
	if rows == nil {
		rows = []model.PopularSearch{}
	}
	writeJSON(w, http.StatusOK, popularResponse{Popular: rows})
}

// pickStrategy falls back to the configured default when the request
// leaves the strategy out.
func (s *Server) pickStrategy(raw string) model.Strategy {
	if strings.TrimSpace(raw) == "" {
		raw = s.cfg.AggregatorStrategy
	}
	return model.ParseStrategy(raw)
}

// writeSearchError maps the engine's only error surface, an expired
// caller context, onto HTTP codes.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Warn("search request failed",
		logger.String("requestId", RequestID(r.Context())),
		logger.ErrorField(err))
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "search timed out")
		return
	}
	writeError(w, http.StatusInternalServerError, "search failed")
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func int64Query(r *http.Request, name string, fallback int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func boolQuery(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
