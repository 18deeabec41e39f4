package main

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-dashboard/internal/cache"
	"github.com/kjstillabower/weather-history-dashboard/internal/client"
	"github.com/kjstillabower/weather-history-dashboard/internal/config"
	"github.com/kjstillabower/weather-history-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-history-dashboard/internal/scheduler"
	"github.com/kjstillabower/weather-history-dashboard/internal/service"
)

func TestNewCacheBackend(t *testing.T) {
	tests := []struct {
		backend    string
		wantMemory bool
		wantPing   bool
	}{
		{config.BackendInMemory, true, false},
		{config.BackendMemcached, false, true},
		{config.BackendRedis, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			cfg := &config.Config{
				CacheBackend:     tc.backend,
				CacheCapacity:    8,
				MemcachedAddrs:   "localhost:11211",
				MemcachedTimeout: 100 * time.Millisecond,
				RedisAddr:        "localhost:6379",
				RedisTimeout:     100 * time.Millisecond,
			}
			b, err := newCacheBackend(cfg)
			if err != nil {
				t.Fatalf("newCacheBackend() error = %v", err)
			}
			if b.cache == nil {
				t.Fatal("cache is nil")
			}
			if (b.memory != nil) != tc.wantMemory {
				t.Errorf("memory set = %v, want %v", b.memory != nil, tc.wantMemory)
			}
			if (b.ping != nil) != tc.wantPing || (b.close != nil) != tc.wantPing {
				t.Errorf("ping/close set = %v/%v, want %v", b.ping != nil, b.close != nil, tc.wantPing)
			}
			if b.close != nil {
				_ = b.close()
			}
		})
	}
}

func TestScheduleJobs(t *testing.T) {
	cfg := &config.Config{
		CacheBackend:           config.BackendInMemory,
		CacheSweepInterval:     time.Minute,
		WarmEnabled:            true,
		WarmInterval:           time.Hour,
		WarmQueries:            cache.DefaultPresets,
		DashboardIdleTimeout:   time.Minute,
		DashboardSweepInterval: time.Minute,
	}
	backend, err := newCacheBackend(cfg)
	if err != nil {
		t.Fatalf("newCacheBackend() error = %v", err)
	}
	archive := client.NewOpenMeteoArchiveClient("http://127.0.0.1:0", time.Second)
	history := service.NewHistoryService(archive, backend.cache, time.Minute, true, zap.NewNop())
	registry := dashboard.NewRegistry(history, zap.NewNop())
	defer registry.Close()

	s, err := scheduler.New(zap.NewNop())
	if err != nil {
		t.Fatalf("scheduler.New() error = %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	if err := scheduleJobs(s, cfg, backend, history, registry, zap.NewNop()); err != nil {
		t.Errorf("scheduleJobs() error = %v", err)
	}

	cfg.DashboardSweepInterval = 0
	if err := scheduleJobs(s, cfg, backend, history, registry, zap.NewNop()); err == nil {
		t.Error("scheduleJobs() with zero sweep interval error = nil, want error")
	}
}
