// Package server exposes the search engine over HTTP: JSON endpoints for
// search, trending, suggestions and download resolution, a websocket that
// streams per-source batches, and a JWT-gated admin surface.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"TrackHound/cache"
	"TrackHound/config"
	"TrackHound/logger"
	"TrackHound/model"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 120 * time.Second
)

// Engine is the slice of the search orchestrator the handlers call.
type Engine interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
	StreamSearch(ctx context.Context, req model.SearchRequest, emit func(src model.TrackSource, results []model.SearchResult, err error)) (*model.SearchResponse, error)
	Trending(ctx context.Context, limit int, forceRefresh bool) ([]model.SearchResult, error)
	Suggestions(ctx context.Context, prefix string) []string
	ResolveDownload(ctx context.Context, src model.TrackSource, externalID string) (*model.DownloadResolution, error)
	InvalidateDownload(ctx context.Context, src model.TrackSource, externalID string) error
	RecentSearches(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error)
	PopularSearches(ctx context.Context, limit int) ([]model.PopularSearch, error)
	HealthCheck(ctx context.Context) []model.HealthStatus
	CacheStats() cache.Stats
	ClearCachedSearches(ctx context.Context, pattern string) (int, error)
}

// ArchiveStore is the slice of the archival layer the admin surface needs.
type ArchiveStore interface {
	Remove(ctx context.Context, src model.TrackSource, externalID string) error
}

// Options carries the optional collaborators. Anything left nil simply
// switches its feature off: no Users means no daily limit, no SQLDB/Redis
// means those health probes are skipped.
type Options struct {
	Users   *cache.UserCache
	Archive ArchiveStore
	SQLDB   *sql.DB
	Redis   *redis.Client
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg     *config.Config
	engine  Engine
	users   *cache.UserCache
	archive ArchiveStore
	sqlDB   *sql.DB
	redis   *redis.Client
	http    *http.Server
	log     *zap.Logger
}

// New builds the server and its router.
func New(cfg *config.Config, engine Engine, opts Options) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		users:   opts.Users,
		archive: opts.Archive,
		sqlDB:   opts.SQLDB,
		redis:   opts.Redis,
		log:     logger.Named("server"),
	}
	s.http = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestID, s.logRequests, s.cors)

	// OPTIONS is registered everywhere so the CORS middleware sees
	// preflights; mux skips middleware on method mismatches.
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/trending", s.handleTrending).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/suggest", s.handleSuggest).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/popular", s.handlePopular).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/download/resolve", s.handleResolveDownload).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/download/{source}/{id}", s.adminOnly(s.handleDeleteDownload)).Methods(http.MethodDelete, http.MethodOptions)

	api.HandleFunc("/admin/token", s.handleAdminToken).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/cache/stats", s.adminOnly(s.handleCacheStats)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/cache/search", s.adminOnly(s.handleClearSearchCache)).Methods(http.MethodDelete, http.MethodOptions)

	router.HandleFunc("/ws/search", s.handleSearchStream).Methods(http.MethodGet)

	return router
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
