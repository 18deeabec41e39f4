package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-history-dashboard/internal/cache"
	"github.com/kjstillabower/weather-history-dashboard/internal/client"
	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	"github.com/kjstillabower/weather-history-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
)

// HistoryService orchestrates history retrieval using cache-aside with the
// archive API as the source of truth.
type HistoryService struct {
	client client.ArchiveClient
	cache  cache.Cache
	ttl    time.Duration
	group  *singleflight.Group // nil when coalescing is disabled
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a HistoryService.
type Option func(*HistoryService)

// WithClock overrides time.Now for the "today" check, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *HistoryService) {
		s.now = now
	}
}

// NewHistoryService creates a HistoryService. ttl is how long fetched responses
// stay fresh in c. With coalesce, concurrent misses for one key share a single
// upstream call.
func NewHistoryService(archive client.ArchiveClient, c cache.Cache, ttl time.Duration, coalesce bool, logger *zap.Logger, opts ...Option) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HistoryService{
		client: archive,
		cache:  c,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
	if coalesce {
		s.group = &singleflight.Group{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchWeather validates q, serves a fresh cached response when one exists,
// and otherwise fetches from the archive and caches the result.
// Errors are *validation.ValidationError (no network call was made) or the
// archive client's RemoteAPIError, NetworkError or MalformedResponseError.
func (s *HistoryService) FetchWeather(ctx context.Context, q models.Query) (models.WeatherResponse, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	if err := validation.ValidateQuery(q, s.now()); err != nil {
		observability.HistoryFetchesTotal.WithLabelValues(string(client.ErrorCategoryValidation)).Inc()
		return models.WeatherResponse{}, err
	}

	key := cache.Key(q)
	if data, ok := s.lookup(ctx, logger, key); ok {
		observability.HistoryFetchesTotal.WithLabelValues("hit").Inc()
		logger.Debug("history served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return data, nil
	}

	logger.Debug("cache miss, fetching archive", zap.String("key", key))
	data, err := s.fetch(ctx, logger, key, q)
	if err != nil {
		category := client.CategorizeError(err)
		observability.HistoryFetchesTotal.WithLabelValues(string(category)).Inc()
		logger.Warn("history fetch failed", zap.String("key", key), zap.String("category", string(category)), zap.Error(err))
		return models.WeatherResponse{}, fmt.Errorf("fetch history %s: %w", q, err)
	}
	observability.HistoryFetchesTotal.WithLabelValues("success").Inc()
	logger.Debug("history served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// lookup reads the cache. Backend errors are logged and counted, then treated as a miss.
func (s *HistoryService) lookup(ctx context.Context, logger *zap.Logger, key string) (models.WeatherResponse, bool) {
	getStart := time.Now()
	data, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return models.WeatherResponse{}, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
	if !ok {
		observability.CacheMissesTotal.WithLabelValues("history").Inc()
		return models.WeatherResponse{}, false
	}
	observability.CacheHitsTotal.WithLabelValues("history").Inc()
	return data, true
}

// fetch calls the archive, coalescing concurrent misses for key when enabled.
// The shared call runs detached from ctx cancellation so one departing caller
// cannot fail the others; the client timeout bounds it. Each caller still
// stops waiting when its own ctx is done, with a NetworkError.
func (s *HistoryService) fetch(ctx context.Context, logger *zap.Logger, key string, q models.Query) (models.WeatherResponse, error) {
	if s.group == nil {
		return s.fetchAndStore(ctx, logger, key, q)
	}
	led := false
	ch := s.group.DoChan(key, func() (interface{}, error) {
		led = true
		return s.fetchAndStore(context.WithoutCancel(ctx), logger, key, q)
	})
	select {
	case <-ctx.Done():
		logger.Debug("stopped waiting for in-flight fetch", zap.String("key", key), zap.Error(ctx.Err()))
		return models.WeatherResponse{}, &client.NetworkError{Err: ctx.Err()}
	case res := <-ch:
		if !led {
			observability.FetchCoalescedTotal.Inc()
			logger.Debug("joined in-flight fetch", zap.String("key", key))
		}
		if res.Err != nil {
			return models.WeatherResponse{}, res.Err
		}
		return res.Val.(models.WeatherResponse), nil
	}
}

// fetchAndStore performs one upstream call and caches the result on success only.
func (s *HistoryService) fetchAndStore(ctx context.Context, logger *zap.Logger, key string, q models.Query) (models.WeatherResponse, error) {
	data, err := s.client.FetchDaily(ctx, q)
	if err != nil {
		// A 4xx other than 429 is a rejected query; the archive itself answered.
		if client.IsBreakerFailure(err) {
			traffic.RecordError()
		} else {
			traffic.RecordSuccess()
		}
		return models.WeatherResponse{}, err
	}
	traffic.RecordSuccess()

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	return data, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "connection"
	}
	return "unknown"
}
