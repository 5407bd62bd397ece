package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"TrackHound/logger"
	"TrackHound/model"
)

const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is one message on the search stream: a per-source batch, a
// per-source failure, or the final ranked response.
type wsFrame struct {
	Type     string                `json:"type"`
	Source   model.TrackSource     `json:"source,omitempty"`
	Results  []model.SearchResult  `json:"results,omitempty"`
	Error    string                `json:"error,omitempty"`
	Response *model.SearchResponse `json:"response,omitempty"`
}

// handleSearchStream runs one search and pushes per-source batches as the
// adapters finish, then a final ranked frame, then closes.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	params := r.URL.Query()
	query := strings.TrimSpace(params.Get("q"))
	if query == "" {
		_ = writeFrame(conn, wsFrame{Type: "error", Error: "q is required"})
		return
	}

	req := model.SearchRequest{
		Query:    query,
		UserID:   int64Query(r, "userId", 0),
		Limit:    intQuery(r, "limit", 0),
		Strategy: s.pickStrategy(params.Get("strategy")),
	}
	if raw := params.Get("sources"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.Sources = append(req.Sources, model.TrackSource(name))
			}
		}
	}

	resp, err := s.engine.StreamSearch(r.Context(), req, func(src model.TrackSource, results []model.SearchResult, srcErr error) {
		frame := wsFrame{Type: "batch", Source: src, Results: results}
		if srcErr != nil {
			frame.Type = "error"
			frame.Error = srcErr.Error()
			frame.Results = nil
		}
		if err := writeFrame(conn, frame); err != nil {
			s.log.Debug("websocket write failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		_ = writeFrame(conn, wsFrame{Type: "error", Error: "search failed"})
		return
	}
	if err := writeFrame(conn, wsFrame{Type: "final", Response: resp}); err != nil {
		s.log.Debug("websocket write failed", logger.ErrorField(err))
		return
	}

	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func writeFrame(conn *websocket.Conn, frame wsFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
