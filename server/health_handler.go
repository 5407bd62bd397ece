package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"TrackHound/cache"
	"TrackHound/model"
)

const healthTimeout = 10 * time.Second

type probe struct {
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string               `json:"status"`
	Sources  []model.HealthStatus `json:"sources"`
	Database *probe               `json:"database,omitempty"`
	Redis    *probe               `json:"redis,omitempty"`
	Cache    cache.Stats          `json:"cache"`
}

// handleHealth probes every registered source plus the backing stores.
// It always answers 200; the status field carries the verdict.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Sources: s.engine.HealthCheck(ctx),
		Cache:   s.engine.CacheStats(),
	}
	if resp.Sources == nil {
		resp.Sources = []model.HealthStatus{}
	}

	healthy := false
	for _, st := range resp.Sources {
		if st.Healthy {
			healthy = true
			break
		}
	}

	if s.sqlDB != nil {
		p := probeDB(ctx, s.sqlDB)
		resp.Database = &p
		healthy = healthy && p.Healthy
	}
	if s.redis != nil {
		p := probeRedis(ctx, s.redis)
		resp.Redis = &p
		healthy = healthy && p.Healthy
	}

	resp.Status = "degraded"
	if healthy {
		resp.Status = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func probeDB(ctx context.Context, db *sql.DB) probe {
	started := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return probe{LatencyMs: time.Since(started).Milliseconds(), Error: err.Error()}
	}
	return probe{Healthy: true, LatencyMs: time.Since(started).Milliseconds()}
}

func probeRedis(ctx context.Context, client *redis.Client) probe {
	started := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		return probe{LatencyMs: time.Since(started).Milliseconds(), Error: err.Error()}
	}
	return probe{Healthy: true, LatencyMs: time.Since(started).Milliseconds()}
}
