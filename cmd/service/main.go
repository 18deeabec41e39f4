package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-history-dashboard/internal/cache"
	"github.com/kjstillabower/weather-history-dashboard/internal/client"
	"github.com/kjstillabower/weather-history-dashboard/internal/config"
	"github.com/kjstillabower/weather-history-dashboard/internal/dashboard"
	httphandler "github.com/kjstillabower/weather-history-dashboard/internal/http"
	"github.com/kjstillabower/weather-history-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	"github.com/kjstillabower/weather-history-dashboard/internal/scheduler"
	"github.com/kjstillabower/weather-history-dashboard/internal/service"
)

// cacheBackend is the selected cache plus the hooks main needs around it.
// ping and close are nil for the in-memory backend; memory is nil otherwise.
type cacheBackend struct {
	cache  cache.Cache
	memory *cache.InMemoryCache
	ping   func() error
	close  func() error
}

func newCacheBackend(cfg *config.Config) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("memcached cache: %w", err)
		}
		return cacheBackend{cache: mc, ping: mc.Ping, close: mc.Close}, nil
	case config.BackendRedis:
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		return cacheBackend{cache: rc, ping: rc.Ping, close: rc.Close}, nil
	default:
		mem := cache.NewInMemoryCache(cfg.CacheCapacity)
		return cacheBackend{cache: mem, memory: mem}, nil
	}
}

// scheduleJobs registers the periodic maintenance jobs.
func scheduleJobs(s *scheduler.Scheduler, cfg *config.Config, backend cacheBackend, history *service.HistoryService, registry *dashboard.Registry, logger *zap.Logger) error {
	if backend.memory != nil {
		mem := backend.memory
		if err := s.Add(scheduler.Job{
			Name:     "cache_sweep",
			Interval: cfg.CacheSweepInterval,
			Run: func(ctx context.Context) error {
				if n := mem.Sweep(); n > 0 {
					logger.Debug("cache sweep", zap.Int("removed", n), zap.Int("remaining", mem.Len()))
				}
				return nil
			},
		}); err != nil {
			return err
		}
	}
	if cfg.WarmEnabled && len(cfg.WarmQueries) > 0 {
		warmer := cache.NewCacheWarmer(history, logger)
		if err := s.Add(scheduler.Job{
			Name:      "cache_warm",
			Interval:  cfg.WarmInterval,
			Immediate: true,
			Run: func(ctx context.Context) error {
				return warmer.Warm(ctx, cfg.WarmQueries)
			},
		}); err != nil {
			return err
		}
	}
	return s.Add(scheduler.Job{
		Name:     "dashboard_sweep",
		Interval: cfg.DashboardSweepInterval,
		Run: func(ctx context.Context) error {
			if n := registry.SweepIdle(cfg.DashboardIdleTimeout); n > 0 {
				logger.Info("idle dashboards unmounted", zap.Int("count", n), zap.Int("mounted", registry.Len()))
			}
			return nil
		},
	})
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var clientOpts []client.Option
	if cfg.CircuitBreakerEnabled {
		clientOpts = append(clientOpts, client.WithCircuitBreaker(cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerTimeout))
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	archive := client.NewOpenMeteoArchiveClient(cfg.ArchiveAPIURL, cfg.ArchiveAPITimeout, clientOpts...)

	backend, err := newCacheBackend(cfg)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	history := service.NewHistoryService(archive, backend.cache, cfg.CacheTTL, cfg.CoalesceEnabled, logger)
	registry := dashboard.NewRegistry(history, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		CachePing:            backend.ping,
	}
	if cfg.CircuitBreakerEnabled {
		healthConfig.BreakerState = archive.BreakerState
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(history, registry, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	observability.RegisterTrafficGauges(cfg.DegradedWindow)

	jobs, err := scheduler.New(logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	if err := scheduleJobs(jobs, cfg, backend, history, registry, logger); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	jobs.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)

	if err := jobs.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	registry.Close()
	if err := registry.Wait(waitCtx); err != nil {
		logger.Warn("dashboard fetches not completed", zap.Error(err))
	}

	if err := observability.FlushTelemetry(logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if backend.close != nil {
		if err := backend.close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
