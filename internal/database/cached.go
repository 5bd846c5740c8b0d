package database

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/user-lookup-service/internal/cache"
	"github.com/kjstillabower/user-lookup-service/internal/models"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
)

// CachedDatabase is a cache-aside decorator. Cache failures are counted and
// logged but never fail a lookup; the backing Database is the source of truth.
type CachedDatabase struct {
	next   Database
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedDatabase wraps next with c. logger may be nil.
func NewCachedDatabase(next Database, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedDatabase {
	return &CachedDatabase{next: next, cache: c, ttl: ttl, logger: logger}
}

// GetUser serves id from cache, or from the backing Database on a miss and
// populates the cache with the result. Backing errors are returned unchanged.
func (d *CachedDatabase) GetUser(ctx context.Context, id int64) (models.User, error) {
	logger := observability.LoggerFromContext(ctx, d.logger)

	getStart := time.Now()
	cached, ok, err := d.cache.Get(ctx, id)
	getDuration := time.Since(getStart).Seconds()
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		if logger != nil {
			logger.Warn("cache get failed", zap.Int64("user_id", id), zap.Error(err))
		}
	case ok:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.Inc()
		return cached, nil
	default:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheMissesTotal.Inc()
	}

	u, err := d.next.GetUser(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	setStart := time.Now()
	if setErr := d.cache.Set(ctx, id, u, d.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.Int64("user_id", id), zap.Error(setErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	return u, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "refused") {
		return "connection"
	}
	return "unknown"
}
