package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kjstillabower/user-lookup-service/internal/cache"
	"github.com/kjstillabower/user-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/user-lookup-service/internal/client"
	"github.com/kjstillabower/user-lookup-service/internal/config"
	"github.com/kjstillabower/user-lookup-service/internal/database"
	httphandler "github.com/kjstillabower/user-lookup-service/internal/http"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
	"github.com/kjstillabower/user-lookup-service/internal/service"
)

const breakerComponent = "user_directory"

// userStack is everything between the HTTP layer and the user store.
type userStack struct {
	actions        *service.UserActions
	cached         *database.CachedDatabase
	health         *httphandler.HealthConfig
	closers        []io.Closer
	restoreDefault func()
}

// buildUserStack opens the configured backend, decorates it with the configured
// cache and installs the result as the process-wide default lookup.
func buildUserStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*userStack, error) {
	client.Register()
	opts := database.Options{
		Path:           cfg.SQLitePath,
		DSN:            cfg.PostgresDSN,
		URL:            cfg.DirectoryURL,
		Token:          cfg.DirectoryToken,
		Timeout:        cfg.DirectoryTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	}
	if cfg.SeedDevUsers {
		opts.Seed = database.DevUsers
	}
	db, err := database.Open(ctx, cfg.DatabaseBackend, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("database backend", zap.String("backend", cfg.DatabaseBackend))

	s := &userStack{
		health: &httphandler.HealthConfig{
			DegradedWindow:   cfg.DegradedWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
		},
	}
	if c, ok := db.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	if p, ok := db.(interface{ Ping() error }); ok {
		s.health.DatabasePing = p.Ping
	}
	if dc, ok := db.(*client.DirectoryClient); ok {
		attachBreaker(dc, cfg, logger)
	}

	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			s.close(logger)
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		s.closers = append(s.closers, mc)
		s.health.CachePing = mc.Ping
		s.cached = database.NewCachedDatabase(db, mc, cfg.CacheTTL, logger)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "in_memory":
		s.cached = database.NewCachedDatabase(db, cache.NewInMemoryCache(), cfg.CacheTTL, logger)
		logger.Info("cache backend: in_memory")
	default:
		logger.Info("cache disabled")
	}
	if s.cached != nil {
		db = s.cached
	}

	s.actions = service.NewUserActions(db, logger)
	s.restoreDefault = service.SetDefault(s.actions)
	return s, nil
}

func attachBreaker(dc *client.DirectoryClient, cfg *config.Config, logger *zap.Logger) {
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		SuccessThreshold: cfg.CircuitSuccessThreshold,
		Timeout:          cfg.CircuitOpenTimeout,
		Component:        breakerComponent,
		IsFailure:        client.BreakerIsFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(breakerComponent, int(to))
			logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	dc.SetCircuitBreaker(cb)
	observability.SetCircuitBreakerStateGauge(breakerComponent, int(circuitbreaker.StateClosed))
	logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitFailureThreshold), zap.Duration("timeout", cfg.CircuitOpenTimeout))
}

// close releases the backend and cache connections in the order they were opened.
func (s *userStack) close(logger *zap.Logger) {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}
}
