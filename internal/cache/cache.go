// Package cache is a Redis-backed JSON response cache. Lookups go through a
// circuit breaker so a dead Redis degrades to cache misses instead of slow
// requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/config"
	"github.com/sells-group/custard-cli/internal/resilience"
)

const keyPrefix = "custard"

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = eris.New("cache: miss")

// Client is the subset of redis.Cmdable the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Cache stores JSON values with a fixed TTL.
type Cache struct {
	client  Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
}

// New wraps client. breaker may be nil.
func New(client Client, ttl time.Duration, breaker *resilience.CircuitBreaker) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, breaker: breaker}
}

// Open connects to Redis from config. It returns nil, nil when no address
// is configured.
func Open(ctx context.Context, cfg config.RedisConfig, breaker *resilience.CircuitBreaker) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "cache: ping %s", cfg.Addr)
	}
	return New(client, time.Duration(cfg.TTLSecs)*time.Second, breaker), nil
}

// Key joins parts under the application prefix.
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

// Get decodes the value at key into dst.
func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.guard(ctx, func(ctx context.Context) ([]byte, error) {
		b, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return b, err
	})
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return ErrMiss
		}
		return eris.Wrapf(err, "cache: get %s", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrapf(err, "cache: decode %s", key)
	}
	return nil
}

// Set encodes v as JSON and stores it at key.
func (c *Cache) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", key)
	}
	_, err = c.guard(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, c.client.Set(ctx, key, raw, c.ttl).Err()
	})
	return eris.Wrapf(err, "cache: set %s", key)
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return eris.Wrap(c.client.Ping(ctx).Err(), "cache: ping")
}

// guard runs fn through the breaker. A miss is not a failure.
func (c *Cache) guard(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if c.breaker == nil {
		return fn(ctx)
	}
	var miss bool
	b, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		b, err := fn(ctx)
		if errors.Is(err, ErrMiss) {
			miss = true
			return nil, nil
		}
		return b, err
	})
	if miss {
		return nil, ErrMiss
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		zap.L().Debug("cache: breaker open, skipping redis")
	}
	return b, err
}
