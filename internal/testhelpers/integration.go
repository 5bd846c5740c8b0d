//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/user-lookup-service/internal/cache"
	"github.com/kjstillabower/user-lookup-service/internal/database"
	"github.com/kjstillabower/user-lookup-service/internal/models"
	"github.com/kjstillabower/user-lookup-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
	Seed          []models.User
}

// GetIntegrationConfig reads INTEGRATION_CACHE_BACKEND and MEMCACHED_ADDRS.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		Seed:          database.DevUsers,
	}
}

// SetupIntegrationActions builds UserActions over an on-disk SQLite database in a temp
// dir, seeded with cfg.Seed and fronted by the configured cache. Falls back to the
// in-memory cache when memcached is unreachable.
func SetupIntegrationActions(t *testing.T, cfg IntegrationTestConfig) (*service.UserActions, cache.Cache, func()) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite", database.Options{
		Path: filepath.Join(t.TempDir(), "users.db"),
		Seed: cfg.Seed,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	closeDB := func() { _ = db.(*database.SQLiteDatabase).Close() }

	var cacheSvc cache.Cache = cache.NewInMemoryCache()
	cleanup := closeDB
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() {
				_ = mc.Close()
				closeDB()
			}
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}

	cached := database.NewCachedDatabase(db, cacheSvc, 5*time.Minute, zap.NewNop())
	return service.NewUserActions(cached, zap.NewNop()), cacheSvc, cleanup
}
