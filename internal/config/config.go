package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-history-dashboard/internal/cache"
	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
)

// Cache backend names accepted by cache.backend and CACHE_BACKEND.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	ArchiveAPIURL     string
	ArchiveAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend       string
	CacheTTL           time.Duration
	CacheCapacity      int
	CacheSweepInterval time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	RateLimitRPS    int
	RateLimitBurst  int
	CoalesceEnabled bool

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerTimeout          time.Duration

	DashboardIdleTimeout   time.Duration
	DashboardSweepInterval time.Duration

	WarmEnabled  bool
	WarmInterval time.Duration
	WarmQueries  []cache.Preset

	ShutdownTimeout time.Duration
	InFlightTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	OverloadWindow       time.Duration
	OverloadThresholdPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	ArchiveAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"archive_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend       string `yaml:"backend"`
		TTL           string `yaml:"ttl"`
		Capacity      int    `yaml:"capacity"`
		SweepInterval string `yaml:"sweep_interval"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS    int   `yaml:"rate_limit_rps"`
		RateLimitBurst  int   `yaml:"rate_limit_burst"`
		CoalesceEnabled *bool `yaml:"coalesce_enabled"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Dashboard struct {
		IdleTimeout   string `yaml:"idle_timeout"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"dashboard"`

	Warm struct {
		Enabled  bool           `yaml:"enabled"`
		Interval string         `yaml:"interval"`
		Queries  []cache.Preset `yaml:"queries"`
	} `yaml:"warm"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"lifecycle"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) after
// loading an optional .env file. Env overrides: SERVER_PORT, ARCHIVE_API_URL,
// CACHE_BACKEND, MEMCACHED_ADDRS, REDIS_ADDR. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")

	cfg.ArchiveAPIURL = firstNonEmpty(os.Getenv("ARCHIVE_API_URL"), fc.ArchiveAPI.URL, "https://archive-api.open-meteo.com/v1/archive")
	cfg.ArchiveAPITimeout = parseDurationOrZero(fc.ArchiveAPI.Timeout, 30*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 35*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendInMemory))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.CacheCapacity = positiveOr(fc.Cache.Capacity, cache.DefaultCapacity)
	cfg.CacheSweepInterval = parseDuration(fc.Cache.SweepInterval, time.Minute)

	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = fc.Cache.Redis.Password
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)
	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(fc.CircuitBreaker.FailureThreshold, 5)
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.DashboardIdleTimeout = parseDuration(fc.Dashboard.IdleTimeout, 30*time.Minute)
	cfg.DashboardSweepInterval = parseDuration(fc.Dashboard.SweepInterval, time.Minute)

	cfg.WarmEnabled = fc.Warm.Enabled
	cfg.WarmInterval = parseDuration(fc.Warm.Interval, 10*time.Minute)
	cfg.WarmQueries = fc.Warm.Queries
	if len(cfg.WarmQueries) == 0 {
		cfg.WarmQueries = cache.DefaultPresets
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Lifecycle.DegradedErrorPct, 50)
	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above ArchiveAPITimeout so a handler never gives up
// before the upstream call it is waiting on.
func validate(cfg *Config) error {
	if cfg.ArchiveAPITimeout <= 0 {
		return fmt.Errorf("archive_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ArchiveAPITimeout {
		cfg.RequestTimeout = cfg.ArchiveAPITimeout + time.Second
	}
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", cfg.ServerPort)
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	if cfg.OverloadThresholdPct > 100 {
		return fmt.Errorf("lifecycle.overload_threshold_pct must be at most 100, got %d", cfg.OverloadThresholdPct)
	}
	for i, q := range cfg.WarmQueries {
		if q.Days < 0 || q.Days > validation.MaxRangeDays {
			return fmt.Errorf("warm.queries[%d].days must be between 0 and %d, got %d", i, validation.MaxRangeDays, q.Days)
		}
		if err := validation.ValidateCoordinates(q.Latitude, q.Longitude); err != nil {
			return fmt.Errorf("warm.queries[%d]: %w", i, err)
		}
	}
	return nil
}
