package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the engine configuration. Every tunable has an environment
// override; defaults match the values the upstream catalogs tolerate.
type Config struct {
	// HTTP server
	ServerPort         string
	CORSAllowedOrigins string

	// MySQL (search history / suggestions)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (L2 cache tier)
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// MinIO (resolved-audio archive)
	MinioEndpoint    string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioBucket      string
	MinioUseSSL      bool
	ArchiveDownloads bool

	// VK-style scraped catalog
	VKEnabled    bool
	VKToken      string
	VKAPIBase    string
	VKRateLimit  int
	VKRateWindow time.Duration
	VKTimeout    time.Duration

	// YouTube-style video catalog
	YouTubeEnabled    bool
	YouTubeAPIKey     string
	YTDLPPath         string
	YouTubeRateLimit  int
	YouTubeRateWindow time.Duration
	YouTubeTimeout    time.Duration

	// Spotify-style metadata catalog
	SpotifyEnabled      bool
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRateLimit    int
	SpotifyRateWindow   time.Duration
	SpotifyTimeout      time.Duration

	// Aggregator
	AggregatorMaxConcurrent int
	AggregatorTimeout       time.Duration
	AggregatorStrategy      string

	// Two-tier cache
	CacheLocalMax         int
	CacheLocalBackfillTTL time.Duration
	CacheTTL              CacheTTLConfig

	// Search orchestration
	SearchWorkers      int
	SearchQueueSize    int
	CorrectionsFile    string
	DailyDownloadLimit int

	// HTTP executor
	HTTPMaxAttempts       int
	HTTPRetryAfterDefault time.Duration

	// Admin surface
	AdminKeyHash string
	JWTSecret    string
	JWTTTL       time.Duration

	// Logging
	LogLevel string
	LogDir   string
}

// CacheTTLConfig carries the per-type cache lifetimes. These are policy,
// not code: handlers and caches look them up by cache type.
type CacheTTLConfig struct {
	TrackSearch time.Duration
	TrackInfo   time.Duration
	DownloadURL time.Duration
	UserLimits  time.Duration
	UserData    time.Duration
	Trending    time.Duration
	HealthCheck time.Duration
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds from the environment.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables already in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "trackhound"),

		RedisHost:      getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "trackhound"),

		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:      getEnv("MINIO_BUCKET", "music-files"),
		MinioUseSSL:      getEnvBool("MINIO_USE_SSL", false),
		ArchiveDownloads: getEnvBool("ARCHIVE_DOWNLOADS", false),

		VKEnabled:    getEnvBool("VK_ENABLED", true),
		VKToken:      os.Getenv("VK_TOKEN"),
		VKAPIBase:    getEnv("VK_API_BASE", "https://api.vk.com/method"),
		VKRateLimit:  getEnvInt("VK_RATE_LIMIT", 30),
		VKRateWindow: getEnvSeconds("VK_RATE_WINDOW", 60*time.Second),
		VKTimeout:    getEnvSeconds("VK_TIMEOUT", 30*time.Second),

		YouTubeEnabled:    getEnvBool("YOUTUBE_ENABLED", true),
		YouTubeAPIKey:     os.Getenv("YOUTUBE_API_KEY"),
		YTDLPPath:         getEnv("YTDLP_PATH", "yt-dlp"),
		YouTubeRateLimit:  getEnvInt("YOUTUBE_RATE_LIMIT", 100),
		YouTubeRateWindow: getEnvSeconds("YOUTUBE_RATE_WINDOW", 60*time.Second),
		YouTubeTimeout:    getEnvSeconds("YOUTUBE_TIMEOUT", 60*time.Second),

		SpotifyEnabled:      getEnvBool("SPOTIFY_ENABLED", true),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRateLimit:    getEnvInt("SPOTIFY_RATE_LIMIT", 100),
		SpotifyRateWindow:   getEnvSeconds("SPOTIFY_RATE_WINDOW", 60*time.Second),
		SpotifyTimeout:      getEnvSeconds("SPOTIFY_TIMEOUT", 20*time.Second),

		AggregatorMaxConcurrent: getEnvInt("AGGREGATOR_MAX_CONCURRENT", 3),
		AggregatorTimeout:       getEnvSeconds("AGGREGATOR_TIMEOUT", 30*time.Second),
		AggregatorStrategy:      strings.ToLower(getEnv("AGGREGATOR_STRATEGY", "comprehensive")),

		CacheLocalMax:         getEnvInt("CACHE_LOCAL_MAX", 1000),
		CacheLocalBackfillTTL: getEnvSeconds("CACHE_LOCAL_BACKFILL_TTL", 300*time.Second),
		CacheTTL: CacheTTLConfig{
			TrackSearch: getEnvSeconds("CACHE_TTL_TRACK_SEARCH", 1800*time.Second),
			TrackInfo:   getEnvSeconds("CACHE_TTL_TRACK_INFO", 3600*time.Second),
			DownloadURL: getEnvSeconds("CACHE_TTL_DOWNLOAD_URL", 3600*time.Second),
			UserLimits:  getEnvSeconds("CACHE_TTL_USER_LIMITS", 300*time.Second),
			UserData:    getEnvSeconds("CACHE_TTL_USER_DATA", 300*time.Second),
			Trending:    getEnvSeconds("CACHE_TTL_TRENDING", 1800*time.Second),
			HealthCheck: getEnvSeconds("CACHE_TTL_HEALTH", 60*time.Second),
		},

		SearchWorkers:      getEnvInt("SEARCH_WORKERS", 4),
		SearchQueueSize:    getEnvInt("SEARCH_QUEUE_SIZE", 256),
		CorrectionsFile:    getEnv("CORRECTIONS_FILE", ""),
		DailyDownloadLimit: getEnvInt("DAILY_DOWNLOAD_LIMIT", 50),

		HTTPMaxAttempts:       getEnvInt("HTTP_MAX_ATTEMPTS", 3),
		HTTPRetryAfterDefault: getEnvSeconds("HTTP_RETRY_AFTER_DEFAULT", 2*time.Second),

		AdminKeyHash: os.Getenv("ADMIN_KEY_HASH"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTTTL:       getEnvSeconds("JWT_TTL", 3600*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", ""),
	}
}
