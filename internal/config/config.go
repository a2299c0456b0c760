package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/recordcache/internal/utils"
)

// Config holds daemon configuration derived from environment variables. The
// cache limits themselves are immutable once the cache is constructed; the
// daemon reads them here exactly once at startup.
type Config struct {
	ListenAddr string
	CachePath  string

	// Cache tier limits
	MaxMemoryItems     int64
	MaxMemorySizeBytes int64
	MaxDiskItems       int64
	MaxDiskSizeBytes   int64
	MemoryTTLSeconds   float64
	DiskTTLSeconds     float64
	MaxItemSizeBytes   int64

	// How often the metrics collector and the websocket stream publish a
	// ledger snapshot.
	StatsInterval time.Duration

	// Security settings
	RateLimitGlobal      float64
	RateLimitGlobalBurst int
	RateLimitPerIP       float64
	RateLimitPerIPBurst  int
	EnableRateLimit      bool

	// Observability settings
	LogLevel          string
	OTELEnabled       bool
	OTELEndpoint      string
	OTELSampleRate    float64
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		ListenAddr: getEnvOr("LISTEN_ADDR", ":8080"),
		CachePath:  getEnvOr("CACHE_PATH", "data/cache.db"),

		MaxMemoryItems:     utils.GetEnvAsInt64("CACHE_MAX_MEMORY_ITEMS", 10000),
		MaxMemorySizeBytes: utils.GetEnvAsInt64("CACHE_MAX_MEMORY_SIZE_BYTES", 64<<20),
		MaxDiskItems:       utils.GetEnvAsInt64("CACHE_MAX_DISK_ITEMS", 100000),
		MaxDiskSizeBytes:   utils.GetEnvAsInt64("CACHE_MAX_DISK_SIZE_BYTES", 1<<30),
		MemoryTTLSeconds:   utils.GetEnvAsFloat("CACHE_MEMORY_TTL_SECONDS", 300),
		DiskTTLSeconds:     utils.GetEnvAsFloat("CACHE_DISK_TTL_SECONDS", 86400),
		MaxItemSizeBytes:   utils.GetEnvAsInt64("CACHE_MAX_ITEM_SIZE_BYTES", 1<<20),

		StatsInterval: time.Duration(utils.GetEnvAsInt("STATS_INTERVAL_MS", 5000)) * time.Millisecond,

		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 500.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 1000),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 50.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 100),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),

		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

func getEnvOr(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}
