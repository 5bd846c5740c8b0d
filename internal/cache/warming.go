package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/user-lookup-service/internal/models"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
)

// UserFetcher loads a user through a cache-populating path. database.CachedDatabase
// satisfies it; declaring it here keeps cache free of a database import.
type UserFetcher interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// Warmer prefetches a fixed list of user ids so first requests hit the cache.
type Warmer struct {
	fetcher UserFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer. logger may be nil.
func NewWarmer(fetcher UserFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every id concurrently. It returns the joined errors of the ids that failed.
func (w *Warmer) Warm(ctx context.Context, ids []int64) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("users", len(ids)))
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := w.fetcher.GetUser(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm user %d: %w", id, err))
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("users", len(ids)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs Warm immediately and then every interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, ids []int64, interval time.Duration) error {
	if err := w.Warm(ctx, ids); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, ids); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
