package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/metrics"
)

// DefaultCacheTTL is how long a cached suggestion is reused.
const DefaultCacheTTL = 24 * time.Hour

const cachePrefix = "fleetimport:advisor:v1"

// Cached remembers suggestions per entity and header set in redis, so
// re-uploading the same export does not call the model again.
// Redis failures are logged and the inner advisor is used.
type Cached struct {
	inner  core.Advisor
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps inner with a redis cache.
func NewCached(inner core.Advisor, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, redis: client, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Suggest implements core.Advisor.
func (c *Cached) Suggest(ctx context.Context, headers []string, entityType string) (core.ColumnMapping, error) {
	key := cacheKey(entityType, headers)

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var m core.ColumnMapping
		if jsonErr := json.Unmarshal([]byte(cached), &m); jsonErr == nil {
			metrics.IncAdvisorCache(true)
			return m, nil
		}
		c.logger.Warn("advisor cache entry unreadable", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("advisor cache read failed", "error", err)
	}
	metrics.IncAdvisorCache(false)

	m, err := c.inner.Suggest(ctx, headers, entityType)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(m); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("advisor cache write failed", "error", err)
		}
	}
	return m, nil
}

// cacheKey hashes the header list in order; the same export always hits.
func cacheKey(entityType string, headers []string) string {
	h := sha256.Sum256([]byte(strings.Join(headers, "\x1f")))
	return cachePrefix + ":" + entityType + ":" + hex.EncodeToString(h[:])
}
