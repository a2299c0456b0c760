package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	ResetForTest()
	for _, key := range []string{
		"LISTEN_ADDR", "CACHE_PATH",
		"CACHE_MAX_MEMORY_ITEMS", "CACHE_MAX_DISK_ITEMS",
		"CACHE_MEMORY_TTL_SECONDS", "CACHE_DISK_TTL_SECONDS",
		"STATS_INTERVAL_MS", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.CachePath != "data/cache.db" {
		t.Fatalf("expected default cache path, got %q", cfg.CachePath)
	}
	if cfg.MaxMemoryItems != 10000 || cfg.MaxDiskItems != 100000 {
		t.Fatalf("unexpected item limits: memory=%d disk=%d", cfg.MaxMemoryItems, cfg.MaxDiskItems)
	}
	if cfg.MemoryTTLSeconds != 300 || cfg.DiskTTLSeconds != 86400 {
		t.Fatalf("unexpected TTLs: memory=%v disk=%v", cfg.MemoryTTLSeconds, cfg.DiskTTLSeconds)
	}
	if cfg.StatsInterval != 5*time.Second {
		t.Fatalf("expected default stats interval 5s, got %v", cfg.StatsInterval)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if !cfg.EnableRateLimit {
		t.Fatal("expected rate limiting enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	ResetForTest()
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("CACHE_MAX_MEMORY_ITEMS", "42")
	t.Setenv("CACHE_MAX_DISK_SIZE_BYTES", "123456789012")
	t.Setenv("CACHE_DISK_TTL_SECONDS", "7200.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected overridden listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.MaxMemoryItems != 42 {
		t.Errorf("expected 42 memory items, got %d", cfg.MaxMemoryItems)
	}
	if cfg.MaxDiskSizeBytes != 123456789012 {
		t.Errorf("expected 64-bit disk size, got %d", cfg.MaxDiskSizeBytes)
	}
	if cfg.DiskTTLSeconds != 7200.5 {
		t.Errorf("expected fractional TTL, got %v", cfg.DiskTTLSeconds)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected lowered log level, got %q", cfg.LogLevel)
	}
	ResetForTest()
}

func TestLoadCachesResult(t *testing.T) {
	ResetForTest()
	first := Load()
	t.Setenv("LISTEN_ADDR", ":7070")
	second := Load()
	if first != second {
		t.Fatal("expected Load to return the cached config")
	}
	ResetForTest()
}
