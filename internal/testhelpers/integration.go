//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-dashboard/internal/cache"
	"github.com/kjstillabower/weather-history-dashboard/internal/client"
	"github.com/kjstillabower/weather-history-dashboard/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless ARCHIVE_INTEGRATION is set, since it calls the live archive API.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("ARCHIVE_INTEGRATION") == "" {
		t.Skip("ARCHIVE_INTEGRATION not set, skipping integration test")
	}
	cfg := IntegrationTestConfig{
		APIURL:        os.Getenv("ARCHIVE_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = client.DefaultArchiveURL
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	return cfg
}

// SetupIntegrationService creates a history service against the live archive API
// and the configured cache backend. Unreachable remote caches fall back to in-memory.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig, logger *zap.Logger) (*service.HistoryService, cache.Cache, func()) {
	t.Helper()
	archive := client.NewOpenMeteoArchiveClient(cfg.APIURL, 10*time.Second)

	var cacheSvc cache.Cache
	cleanup := func() {}
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("memcached not available, using in-memory cache")
		}
	case "redis":
		rc := cache.NewRedisCache(cfg.RedisAddr, "", 0, 500*time.Millisecond)
		if rc.Ping() == nil {
			cacheSvc = rc
			cleanup = func() { _ = rc.Close() }
			t.Logf("Using redis cache at %s", cfg.RedisAddr)
		} else {
			_ = rc.Close()
			t.Logf("redis not available, using in-memory cache")
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache(0)
	}

	return service.NewHistoryService(archive, cacheSvc, 5*time.Minute, true, logger), cacheSvc, cleanup
}
