package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
)

// WeatherFetcher is implemented by the service layer to fetch history for a query.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, q models.Query) (models.WeatherResponse, error)
}

// Preset is a query relative to today: the last Days days ending today.
type Preset struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Days      int     `yaml:"days"`
}

// Query resolves the preset against now.
func (p Preset) Query(now time.Time) models.Query {
	end := validation.Today(now)
	return models.Query{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		StartDate: end.AddDate(0, 0, -p.Days),
		EndDate:   end,
	}
}

// warmConcurrency bounds parallel archive requests while warming.
const warmConcurrency = 4

// DefaultPresets is the dashboard's initial form query: Zürich, last 30 days.
var DefaultPresets = []Preset{{Latitude: 47.3769, Longitude: 8.5417, Days: 30}}

// CacheWarmer warms the cache by prefetching history for preset queries.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
	now     func() time.Time
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger, now: time.Now}
}

// Warm fetches the presets, at most warmConcurrency at a time; the fetcher
// populates the cache. Returns the joined errors of failed presets.
func (w *CacheWarmer) Warm(ctx context.Context, presets []Preset) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("presets", len(presets)))
	}
	now := w.now()
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(warmConcurrency)
	for _, p := range presets {
		q := p.Query(now)
		g.Go(func() error {
			if _, err := w.fetcher.FetchWeather(ctx, q); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", q, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("presets", len(presets)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
