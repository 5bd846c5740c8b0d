package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/user-lookup-service/internal/cache"
	"github.com/kjstillabower/user-lookup-service/internal/config"
	"github.com/kjstillabower/user-lookup-service/internal/database"
	httphandler "github.com/kjstillabower/user-lookup-service/internal/http"
	"github.com/kjstillabower/user-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
	"github.com/kjstillabower/user-lookup-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.LogLevel != "" {
		if logger, err = observability.NewLoggerAt(cfg.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer func() { _ = logger.Sync() }()

	stack, err := buildUserStack(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("user store", zap.Error(err), zap.Strings("backends", database.Backends()))
	}
	defer stack.restoreDefault()

	traffic.Retain(max(cfg.DegradedWindow, cfg.OverloadWindow))
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if stack.cached != nil && cfg.WarmCache && len(cfg.TrackedUserIDs) > 0 {
		warmer := cache.NewWarmer(stack.cached, logger)
		initCtx, initCancel := context.WithTimeout(warmCtx, 30*time.Second)
		if err := warmer.Warm(initCtx, cfg.TrackedUserIDs); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		initCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(warmCtx, cfg.TrackedUserIDs, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(stack.actions, stack.health, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	stopReady := lifecycle.MarkReadyAfter(cfg.ReadyDelay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	stopReady()
	lifecycle.SetShuttingDown(true)
	stopWarming()

	inFlight := httphandler.InFlightCount()
	observability.RecordShutdownInFlight(inFlight)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	stack.close(logger)

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
