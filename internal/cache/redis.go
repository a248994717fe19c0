package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

const (
	keyPrefix   = "skuwatch:cache:"
	scanBatch   = 200
	pingTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection, retrying
// the ping while the server comes up.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := util.RetryWithBackoff(ctx, util.DefaultBackoff, func(attempt int) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Warn("Redis ping failed", "address", cfg.Address, "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Redis is a cache shared between instances. Keys expire with the cache
// lifetime; FetchedAt is checked on read as well so a shortened lifetime
// takes effect before the TTL runs out.
type Redis struct {
	client   *redis.Client
	lifetime time.Duration
	now      func() time.Time
}

func NewRedis(client *redis.Client, lifetime time.Duration) *Redis {
	return &Redis{client: client, lifetime: lifetime, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

func (r *Redis) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	var e models.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	if !e.Fresh(r.now(), r.lifetime) {
		return models.CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, vs models.VariantSet) error {
	data, err := json.Marshal(models.CacheEntry{Key: key, Variants: vs, FetchedAt: r.now()})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, data, r.lifetime).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// EvictOlderThan deletes entries fetched more than lifetime ago. Redis
// expires keys on its own; this catches entries written under a longer TTL.
func (r *Redis) EvictOlderThan(ctx context.Context, lifetime time.Duration) (int, error) {
	now := r.now()
	evicted := 0
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return evicted, fmt.Errorf("failed to read cache key %s: %w", key, err)
		}
		var e models.CacheEntry
		if err := json.Unmarshal(data, &e); err == nil && e.Fresh(now, lifetime) {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return evicted, fmt.Errorf("failed to delete cache key %s: %w", key, err)
		}
		evicted++
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return evicted, nil
}
