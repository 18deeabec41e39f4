package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
)

// maxRelativeExpiration is the largest expiration memcached reads as an offset;
// larger values are taken as a unix timestamp.
const maxRelativeExpiration = 30 * 24 * time.Hour

// MemcachedCache stores history responses in memcached. Freshness is enforced
// by item expiration, so a stale entry is simply absent.
type MemcachedCache struct {
	client *memcache.Client
	now    func() time.Time
}

// NewMemcachedCache connects to a comma-separated server list such as
// "host1:11211,host2:11211". Zero timeout or maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := splitAddrs(addrs)
	if len(servers) == 0 {
		return nil, errors.New("memcached: no server addresses")
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, now: time.Now}, nil
}

func splitAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the response for key. A missing or expired item is a miss; an
// entry that no longer decodes is deleted and reported as ErrCorruptEntry.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherResponse, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherResponse{}, false, err
	}
	item, err := c.client.Get(remoteKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.WeatherResponse{}, false, nil
	}
	if err != nil {
		return models.WeatherResponse{}, false, err
	}
	resp, _, err := decodeEntry(item.Value)
	if err != nil {
		_ = c.client.Delete(item.Key)
		observability.CacheEvictionsTotal.WithLabelValues("corrupt").Inc()
		return models.WeatherResponse{}, false, err
	}
	return resp, true, nil
}

// Set stores value under key for ttl.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherResponse, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeEntry(value, c.now())
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        remoteKey(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// expirationSeconds converts ttl to a relative memcached expiration, rounding
// sub-second TTLs up to one second. TTLs that are unset or past the relative
// limit fall back to one hour.
func expirationSeconds(ttl time.Duration) int32 {
	switch {
	case ttl <= 0 || ttl > maxRelativeExpiration:
		return int32(time.Hour / time.Second)
	case ttl < time.Second:
		return 1
	}
	return int32(ttl / time.Second)
}

// Ping reports whether every server answers.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
