package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-history-dashboard/internal/cache"
)

// overrideVars are cleared around every Load so the host environment cannot leak in.
var overrideVars = []string{"ENV_NAME", "SERVER_PORT", "ARCHIVE_API_URL", "CACHE_BACKEND", "MEMCACHED_ADDRS", "REDIS_ADDR"}

// inTempProject writes config/dev.yaml into a temp dir, chdirs there and
// clears override env vars for the duration of the test.
func inTempProject(t *testing.T, yamlContent string) string {
	t.Helper()
	for _, k := range overrideVars {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, yamlContent)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempProject(t, "server:\n  port: \"8080\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ArchiveAPIURL != "https://archive-api.open-meteo.com/v1/archive" {
		t.Errorf("ArchiveAPIURL = %q", cfg.ArchiveAPIURL)
	}
	if cfg.ArchiveAPITimeout != 30*time.Second {
		t.Errorf("ArchiveAPITimeout = %v, want 30s", cfg.ArchiveAPITimeout)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("CacheTTL = %v, want 15m", cfg.CacheTTL)
	}
	if cfg.CacheBackend != BackendInMemory {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.CacheCapacity != cache.DefaultCapacity {
		t.Errorf("CacheCapacity = %d, want %d", cfg.CacheCapacity, cache.DefaultCapacity)
	}
	if !cfg.CoalesceEnabled {
		t.Error("CoalesceEnabled = false, want true by default")
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false by default")
	}
	if cfg.RequestTimeout <= cfg.ArchiveAPITimeout {
		t.Errorf("RequestTimeout = %v, want > ArchiveAPITimeout %v", cfg.RequestTimeout, cfg.ArchiveAPITimeout)
	}
	if len(cfg.WarmQueries) != 1 || cfg.WarmQueries[0] != cache.DefaultPresets[0] {
		t.Errorf("WarmQueries = %+v, want default preset", cfg.WarmQueries)
	}
}

func TestLoad_FullFile(t *testing.T) {
	inTempProject(t, fullEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name      string
		got, want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "9090"},
		{"ArchiveAPIURL", cfg.ArchiveAPIURL, "http://archive.local/v1/archive"},
		{"ArchiveAPITimeout", cfg.ArchiveAPITimeout, 5 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 8 * time.Second},
		{"CacheBackend", cfg.CacheBackend, BackendRedis},
		{"CacheTTL", cfg.CacheTTL, 10 * time.Minute},
		{"CacheCapacity", cfg.CacheCapacity, 64},
		{"CacheSweepInterval", cfg.CacheSweepInterval, 30 * time.Second},
		{"RedisAddr", cfg.RedisAddr, "redis:6379"},
		{"RedisDB", cfg.RedisDB, 2},
		{"RedisTimeout", cfg.RedisTimeout, 250 * time.Millisecond},
		{"RateLimitRPS", cfg.RateLimitRPS, 5},
		{"RateLimitBurst", cfg.RateLimitBurst, 10},
		{"CoalesceEnabled", cfg.CoalesceEnabled, false},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, true},
		{"CircuitBreakerFailureThreshold", cfg.CircuitBreakerFailureThreshold, 3},
		{"CircuitBreakerTimeout", cfg.CircuitBreakerTimeout, 20 * time.Second},
		{"DashboardIdleTimeout", cfg.DashboardIdleTimeout, 5 * time.Minute},
		{"WarmEnabled", cfg.WarmEnabled, true},
		{"WarmInterval", cfg.WarmInterval, time.Hour},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
		{"InFlightTimeout", cfg.InFlightTimeout, 3 * time.Second},
		{"DegradedWindow", cfg.DegradedWindow, 2 * time.Minute},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 25},
		{"OverloadWindow", cfg.OverloadWindow, 30 * time.Second},
		{"OverloadThresholdPct", cfg.OverloadThresholdPct, 60},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	want := []cache.Preset{{Latitude: 52.52, Longitude: 13.405, Days: 7}, {Latitude: -33.87, Longitude: 151.21, Days: 30}}
	if len(cfg.WarmQueries) != len(want) {
		t.Fatalf("WarmQueries = %+v, want %+v", cfg.WarmQueries, want)
	}
	for i := range want {
		if cfg.WarmQueries[i] != want[i] {
			t.Errorf("WarmQueries[%d] = %+v, want %+v", i, cfg.WarmQueries[i], want[i])
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempProject(t, fullEnvYAML)
	os.Setenv("CACHE_BACKEND", "Memcached")
	os.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	os.Setenv("SERVER_PORT", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheBackend != BackendMemcached {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want 7000", cfg.ServerPort)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := inTempProject(t, "server:\n  port: \"8080\"\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ARCHIVE_API_URL=http://from-dotenv/archive\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ArchiveAPIURL != "http://from-dotenv/archive" {
		t.Errorf("ArchiveAPIURL = %q, want value from .env", cfg.ArchiveAPIURL)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	inTempProject(t, minimalEnvYAML)
	os.Setenv("ENV_NAME", "nonexistent")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want config file not found", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	inTempProject(t, "server: [unclosed\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_EmptyDurationFallsBackToDefault(t *testing.T) {
	inTempProject(t, minimalEnvYAML+"\ndashboard:\n  idle_timeout: \"\"\n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DashboardIdleTimeout != 30*time.Minute {
		t.Errorf("DashboardIdleTimeout = %v, want default 30m", cfg.DashboardIdleTimeout)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	inTempProject(t, minimalEnvYAML+"\nshutdown:\n  timeout: \"soon\"\n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"zero archive timeout", "archive_api:\n  timeout: \"0s\"\n", "archive_api.timeout"},
		{"unknown backend", "cache:\n  backend: \"dynamo\"\n", "cache.backend"},
		{"non-numeric port", "server:\n  port: \"http\"\n", "server.port"},
		{"degraded pct", "lifecycle:\n  degraded_error_pct: 150\n", "degraded_error_pct"},
		{"warm days", "warm:\n  queries:\n    - {latitude: 1, longitude: 2, days: 400}\n", "warm.queries[0].days"},
		{"warm latitude", "warm:\n  queries:\n    - {latitude: 91, longitude: 2, days: 7}\n", "warm.queries[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempProject(t, tt.yaml)
			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, cfg = %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"  ", time.Minute},
		{"bogus", time.Minute},
		{"-5s", time.Minute},
		{"0s", time.Minute},
		{"90s", 90 * time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
archive_api:
  timeout: "2s"
`

const fullEnvYAML = `
server:
  port: "9090"
archive_api:
  url: "http://archive.local/v1/archive"
  timeout: "5s"
request:
  timeout: "8s"
cache:
  backend: "redis"
  ttl: "10m"
  capacity: 64
  sweep_interval: "30s"
  redis:
    addr: "redis:6379"
    db: 2
    timeout: "250ms"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
  coalesce_enabled: false
circuit_breaker:
  enabled: true
  failure_threshold: 3
  timeout: "20s"
dashboard:
  idle_timeout: "5m"
  sweep_interval: "30s"
warm:
  enabled: true
  interval: "1h"
  queries:
    - latitude: 52.52
      longitude: 13.405
      days: 7
    - latitude: -33.87
      longitude: 151.21
      days: 30
shutdown:
  timeout: "10s"
  in_flight_timeout: "3s"
lifecycle:
  degraded_window: "2m"
  degraded_error_pct: 25
  overload_window: "30s"
  overload_threshold_pct: 60
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
