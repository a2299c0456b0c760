package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/recordcache/internal/api"
	"github.com/onnwee/recordcache/internal/cache"
	"github.com/onnwee/recordcache/internal/config"
	"github.com/onnwee/recordcache/internal/errorreporting"
	"github.com/onnwee/recordcache/internal/logger"
	"github.com/onnwee/recordcache/internal/metrics"
	"github.com/onnwee/recordcache/internal/middleware"
	"github.com/onnwee/recordcache/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, falling back to system env")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("cached")

	shutdownTracing, err := tracing.Init("cached", tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
		Version:    cfg.SentryRelease,
	})
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
	}); err != nil {
		log.Error("Failed to initialize error reporting", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := cache.Open[api.Document](ctx, cache.Config{
		Path:               cfg.CachePath,
		MaxMemoryItems:     cfg.MaxMemoryItems,
		MaxMemorySizeBytes: cfg.MaxMemorySizeBytes,
		MaxDiskItems:       cfg.MaxDiskItems,
		MaxDiskSizeBytes:   cfg.MaxDiskSizeBytes,
		MemoryTTLSeconds:   cfg.MemoryTTLSeconds,
		DiskTTLSeconds:     cfg.DiskTTLSeconds,
		MaxItemSizeBytes:   cfg.MaxItemSizeBytes,
		Logger:             logger.WithComponent("cache"),
	}, cache.JSONDecoder[api.Document]())
	if err != nil {
		log.Error("Failed to open cache", "error", err, "path", cfg.CachePath)
		errorreporting.CaptureError(err)
		os.Exit(1)
	}

	collector := metrics.NewCollector(c, cfg.StatsInterval)
	go collector.Start(ctx)

	var handler http.Handler = api.NewRouter(c, cfg.StatsInterval)
	handler = middleware.Compression(handler)
	if cfg.EnableRateLimit {
		rl := middleware.NewRateLimiter(
			cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst,
		)
		defer rl.Stop()
		handler = rl.Limit(handler)
	}
	handler = middleware.RecoverWithSentry(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Cache daemon listening", "addr", cfg.ListenAddr, "path", cfg.CachePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			errorreporting.CaptureError(err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
	}
	collector.Stop()
	if err := c.Close(); err != nil && !errors.Is(err, cache.ErrClosed) {
		log.Error("Cache close failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Tracing shutdown failed", "error", err)
	}
	errorreporting.Flush(2 * time.Second)
}
