package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"TrackHound/cache"
	"TrackHound/config"
	"TrackHound/core/aggregate"
	"TrackHound/core/request"
	"TrackHound/core/search"
	"TrackHound/core/source"
	"TrackHound/core/spotify"
	"TrackHound/core/vkaudio"
	"TrackHound/core/youtube"
	"TrackHound/db"
	"TrackHound/logger"
	"TrackHound/repository"
	"TrackHound/storage"
)

// runtime is the assembled engine plus everything that must be closed on
// the way out.
type runtime struct {
	cfg     *config.Config
	engine  *search.Service
	tracks  *cache.TrackCache
	users   *cache.UserCache
	archive *storage.Archiver
	sqlDB   *sql.DB
	gormDB  *gorm.DB
	redis   *redis.Client
}

func initLogging(cfg *config.Config) {
	logCfg := logger.Config{Level: logger.LogLevel(cfg.LogLevel)}
	if cfg.LogDir != "" {
		logCfg.OutputPath = filepath.Join(cfg.LogDir, "trackhound.log")
	}
	logger.Init(logCfg)
}

// buildRuntime assembles the full engine. In strict mode a missing backing
// service aborts startup; otherwise it is logged and the engine runs
// degraded (no history without MySQL, local-only cache without Redis, no
// archival without MinIO).
func buildRuntime(ctx context.Context, cfg *config.Config, strict bool) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	optional := func(component string, err error) error {
		if strict {
			return fmt.Errorf("%s: %w", component, err)
		}
		logger.Warn(component+" unavailable, running without it", logger.ErrorField(err))
		return nil
	}

	// MySQL carries history rows via GORM and suggestion counters via
	// database/sql; both ride the same server.
	sqlDB, err := db.ConnectDB(cfg)
	if err != nil {
		if rerr := optional("mysql", err); rerr != nil {
			return nil, rerr
		}
	} else {
		rt.sqlDB = sqlDB
		if err := db.InitDB(sqlDB); err != nil {
			rt.close()
			return nil, fmt.Errorf("mysql schema: %w", err)
		}
		gormDB, err := db.ConnectGorm(cfg)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("gorm: %w", err)
		}
		rt.gormDB = gormDB
		if err := db.AutoMigrate(gormDB); err != nil {
			rt.close()
			return nil, fmt.Errorf("gorm migrate: %w", err)
		}
	}

	// Redis backs the shared cache tier; without it the cache is local only.
	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		if rerr := optional("redis", err); rerr != nil {
			rt.close()
			return nil, rerr
		}
	} else {
		rt.redis = redisClient
	}

	var remote cache.Level2
	if rt.redis != nil {
		remote = cache.NewRedisStore(rt.redis)
	}
	local := cache.NewLocalStore(cfg.CacheLocalMax)
	tier := cache.New(cfg.RedisKeyPrefix, local, remote, cfg.CacheTTL, cfg.CacheLocalBackfillTTL)
	rt.tracks = cache.NewTrackCache(tier)
	rt.users = cache.NewUserCache(tier)

	reg := source.NewRegistry()
	if cfg.VKEnabled {
		reg.Register(vkaudio.New(cfg))
	}
	if cfg.YouTubeEnabled {
		reg.Register(youtube.New(cfg))
	}
	if cfg.SpotifyEnabled {
		reg.Register(spotify.New(cfg))
	}
	if len(reg.Names()) == 0 {
		if strict {
			rt.close()
			return nil, fmt.Errorf("no sources enabled, set VK_ENABLED/YOUTUBE_ENABLED/SPOTIFY_ENABLED")
		}
		logger.Warn("no sources enabled, every search will come back empty")
	}

	agg := aggregate.New(reg, aggregate.Config{
		Tracks:         rt.tracks,
		MaxConcurrent:  cfg.AggregatorMaxConcurrent,
		DefaultTimeout: cfg.AggregatorTimeout,
	})

	opts := search.Options{
		Tracks:      rt.tracks,
		Corrections: search.NewCorrections(cfg.CorrectionsFile),
		Pool:        search.NewPool(cfg.SearchWorkers, cfg.SearchQueueSize),
		Timeout:     cfg.AggregatorTimeout,
	}
	if rt.gormDB != nil {
		opts.History = repository.NewGormHistoryRepository(rt.gormDB)
	}
	if rt.sqlDB != nil {
		opts.Suggestions = repository.NewMySQLSuggestionRepository(rt.sqlDB)
	}

	if cfg.ArchiveDownloads {
		store, err := storage.NewStore(ctx, cfg)
		if err != nil {
			if rerr := optional("minio", err); rerr != nil {
				rt.close()
				return nil, rerr
			}
		} else {
			exec := request.New(request.Config{
				Source:            "archive",
				Timeout:           2 * time.Minute,
				MaxAttempts:       cfg.HTTPMaxAttempts,
				RetryAfterDefault: cfg.HTTPRetryAfterDefault,
			})
			rt.archive = storage.NewArchiver(store, exec, rt.tracks)
			opts.Archiver = rt.archive
		}
	}

	rt.engine = search.New(agg, opts)
	return rt, nil
}

func (rt *runtime) close() {
	if rt.engine != nil {
		if err := rt.engine.Close(); err != nil {
			logger.Warn("closing search service", logger.ErrorField(err))
		}
	}
	if rt.gormDB != nil {
		if err := db.CloseGorm(rt.gormDB); err != nil {
			logger.Warn("closing gorm", logger.ErrorField(err))
		}
	}
	if rt.sqlDB != nil {
		if err := rt.sqlDB.Close(); err != nil {
			logger.Warn("closing mysql", logger.ErrorField(err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			logger.Warn("closing redis", logger.ErrorField(err))
		}
	}
}
