package cache

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
)

// Cache defines the interface for archive response caching implementations.
// Get returns cached data if present and younger than its TTL, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherResponse, bool, error)
	Set(ctx context.Context, key string, value models.WeatherResponse, ttl time.Duration) error
}

// keySeparator never occurs in a formatted float or an ISO date.
const keySeparator = "|"

// Key derives the cache key for q from latitude, longitude, start and end date in that order.
func Key(q models.Query) string {
	return strings.Join([]string{
		strconv.FormatFloat(q.Latitude, 'f', -1, 64),
		strconv.FormatFloat(q.Longitude, 'f', -1, 64),
		q.Start(),
		q.End(),
	}, keySeparator)
}

// DefaultCapacity bounds InMemoryCache when no capacity is configured.
const DefaultCapacity = 512

// InMemoryCache implements Cache with a capacity-bounded LRU list.
// An entry older than its TTL reads as a miss but stays in place until Sweep
// or LRU eviction removes it. Safe for concurrent use.
type InMemoryCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// cacheEntry stores a cached response with the time it was stored.
type cacheEntry struct {
	key      string
	value    models.WeatherResponse
	storedAt time.Time
	ttl      time.Duration
}

func (e *cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

// NewInMemoryCache creates an in-memory cache holding at most capacity entries.
// capacity <= 0 uses DefaultCapacity.
func NewInMemoryCache(capacity int, opts ...Option) *InMemoryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &InMemoryCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns (data, true, nil) when the entry exists and now - storedAt < ttl.
// A stale entry returns (zero, false, nil) and is left for Sweep.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return models.WeatherResponse{}, false, nil
	}
	entry := el.Value.(*cacheEntry)
	if !entry.fresh(c.now()) {
		return models.WeatherResponse{}, false, nil
	}
	c.ll.MoveToFront(el)
	return entry.value, true, nil
}

// Set overwrites any existing entry for key with a fresh timestamp. When the
// cache is full the least recently used entry is evicted.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.storedAt = now
		entry.ttl = ttl
		c.ll.MoveToFront(el)
		return nil
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, value: value, storedAt: now, ttl: ttl})
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
		observability.CacheEvictionsTotal.WithLabelValues("capacity").Inc()
	}
	return nil
}

// Sweep removes every stale entry and returns how many were removed.
func (c *InMemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if !el.Value.(*cacheEntry).fresh(now) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		observability.CacheEvictionsTotal.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

// Len returns the number of stored entries, fresh or stale.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *InMemoryCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}
