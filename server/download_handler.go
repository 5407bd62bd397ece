package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"TrackHound/core/source"
	"TrackHound/logger"
	"TrackHound/model"
)

type resolveRequest struct {
	Source     string `json:"source"`
	ExternalID string `json:"externalId"`
	UserID     int64  `json:"userId"`
}

type resolveResponse struct {
	Source     model.TrackSource         `json:"source"`
	ExternalID string                    `json:"externalId"`
	Resolution *model.DownloadResolution `json:"resolution"`
}

type deleteDownloadResponse struct {
	Source      model.TrackSource `json:"source"`
	ExternalID  string            `json:"externalId"`
	Invalidated bool              `json:"invalidated"`
}

// handleResolveDownload turns a search result into a downloadable URL.
// Upstream failure kinds map onto HTTP codes; the per-user daily counter
// is enforced before any upstream work happens.
func (s *Server) handleResolveDownload(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.Source == "" || req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "source and externalId are required")
		return
	}

	if s.users != nil && s.cfg.DailyDownloadLimit > 0 && req.UserID != 0 {
		count, err := s.users.IncrementDownloads(r.Context(), strconv.FormatInt(req.UserID, 10))
		if err != nil {
			// Counter trouble must not block downloads.
			s.log.Warn("download counter unavailable", logger.ErrorField(err))
		} else if count > int64(s.cfg.DailyDownloadLimit) {
			writeError(w, http.StatusTooManyRequests, "daily download limit reached")
			return
		}
	}

	src := model.TrackSource(req.Source)
	res, err := s.engine.ResolveDownload(r.Context(), src, req.ExternalID)
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Source: src, ExternalID: req.ExternalID, Resolution: res})
}

func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Warn("download resolution failed",
		logger.String("requestId", RequestID(r.Context())),
		logger.ErrorField(err))
	switch {
	case source.IsNotFound(err):
		writeError(w, http.StatusNotFound, "track not found")
	case source.IsUnavailable(err):
		writeError(w, http.StatusGone, "track is no longer available")
	case source.IsRateLimited(err):
		writeError(w, http.StatusTooManyRequests, "source is rate limited, try again later")
	default:
		writeError(w, http.StatusBadGateway, "failed to resolve download")
	}
}

// handleDeleteDownload drops a cached resolution and, when archival is
// wired, the archived object with it.
func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	src := model.TrackSource(vars["source"])
	externalID := vars["id"]

	if err := s.engine.InvalidateDownload(r.Context(), src, externalID); err != nil {
		s.log.Error("invalidating download failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to invalidate download")
		return
	}
	if s.archive != nil {
		if err := s.archive.Remove(r.Context(), src, externalID); err != nil {
			s.log.Warn("removing archived copy failed",
				logger.String("source", string(src)),
				logger.String("externalId", externalID),
				logger.ErrorField(err))
		}
	}
	writeJSON(w, http.StatusOK, deleteDownloadResponse{Source: src, ExternalID: externalID, Invalidated: true})
}
