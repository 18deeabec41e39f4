package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
)

// RedisCache implements Cache using redis string keys with native expiration.
type RedisCache struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisCache creates a RedisCache for the server at addr.
// timeout applies to dial, read and write; zero keeps go-redis defaults.
func NewRedisCache(addr, password string, db int, timeout time.Duration) *RedisCache {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return &RedisCache{rdb: redis.NewClient(opts), now: time.Now}
}

// Get implements Cache.Get. redis.Nil is reported as a miss; an entry that no
// longer decodes is deleted and reported as ErrCorruptEntry.
func (c *RedisCache) Get(ctx context.Context, key string) (models.WeatherResponse, bool, error) {
	rk := remoteKey(key)
	raw, err := c.rdb.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.WeatherResponse{}, false, nil
	}
	if err != nil {
		return models.WeatherResponse{}, false, err
	}
	resp, _, err := decodeEntry(raw)
	if err != nil {
		c.rdb.Del(ctx, rk)
		observability.CacheEvictionsTotal.WithLabelValues("corrupt").Inc()
		return models.WeatherResponse{}, false, err
	}
	return resp, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value models.WeatherResponse, ttl time.Duration) error {
	raw, err := encodeEntry(value, c.now())
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, remoteKey(key), raw, ttl).Err()
}

// Ping checks if redis is reachable. Used for health checks.
func (c *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close closes the redis connection pool. Call during shutdown.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
