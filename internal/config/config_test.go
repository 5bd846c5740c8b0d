package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
database:
  backend: fixture
request:
  timeout: "5s"
cache:
  backend: in_memory
  ttl: "5m"
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

// clearOverrides unsets every env override so the host environment cannot leak into Load.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV_NAME", "DATABASE_BACKEND", "SQLITE_PATH", "POSTGRES_DSN", "DIRECTORY_URL", "DIRECTORY_TOKEN",
		"DIRECTORY_TIMEOUT", "CACHE_BACKEND", "MEMCACHED_ADDRS", "SERVER_PORT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func loadFrom(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	writeEnvFile(t, dir, yaml)
	chdir(t, dir)
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	clearOverrides(t)

	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseBackend != "fixture" {
		t.Errorf("DatabaseBackend = %q, want fixture", cfg.DatabaseBackend)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Errorf("rate limit = %d/%d, want 5/10", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.CircuitFailureThreshold != 5 || cfg.CircuitSuccessThreshold != 2 {
		t.Errorf("circuit thresholds = %d/%d, want 5/2", cfg.CircuitFailureThreshold, cfg.CircuitSuccessThreshold)
	}
	if cfg.ReadyDelay != 3*time.Second {
		t.Errorf("ReadyDelay = %v, want 3s", cfg.ReadyDelay)
	}
	if cfg.MemcachedAddrs != "localhost:11211" {
		t.Errorf("MemcachedAddrs = %q, want localhost:11211", cfg.MemcachedAddrs)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearOverrides(t)
	t.Setenv("ENV_NAME", "nonexistent")
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearOverrides(t)

	_, err := loadFrom(t, "server: [unterminated\n")
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearOverrides(t)

	cfg, err := loadFrom(t, strings.Replace(minimalEnvYAML, `ttl: "5m"`, `ttl: "invalid"`, 1))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want default 5m", cfg.CacheTTL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearOverrides(t)
	t.Setenv("DATABASE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/users.db")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "cache-1:11211,cache-2:11211")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseBackend != "sqlite" {
		t.Errorf("DatabaseBackend = %q, want sqlite", cfg.DatabaseBackend)
	}
	if cfg.SQLitePath != "/tmp/users.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "cache-1:11211,cache-2:11211" {
		t.Errorf("cache = %q %q", cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	clearOverrides(t)
	t.Setenv("DIRECTORY_TIMEOUT", "soon")

	if _, err := loadFrom(t, minimalEnvYAML); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("Load() error = %v, want parse env error", err)
	}
}

func TestLoad_DirectoryTokenFromSecretsFile(t *testing.T) {
	clearOverrides(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"directory:\n  url: \"http://directory.local\"\n")
	writeSecretsFile(t, dir, "directory_token: token-from-secrets\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DirectoryToken != "token-from-secrets" {
		t.Errorf("DirectoryToken = %q, want token from secrets file", cfg.DirectoryToken)
	}

	t.Setenv("DIRECTORY_TOKEN", "token-from-env")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DirectoryToken != "token-from-env" {
		t.Errorf("DirectoryToken = %q, env must win over secrets file", cfg.DirectoryToken)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseBackend:  "fixture",
			CacheBackend:     "in_memory",
			DirectoryTimeout: 2 * time.Second,
			RequestTimeout:   5 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid fixture", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.DatabaseBackend = "mongo" }, "database.backend"},
		{"sqlite without path", func(c *Config) { c.DatabaseBackend = "sqlite" }, "sqlite_path"},
		{"postgres without dsn", func(c *Config) { c.DatabaseBackend = "postgres" }, "postgres_dsn"},
		{"postgres with dsn", func(c *Config) {
			c.DatabaseBackend = "postgres"
			c.PostgresDSN = "host=db user=users dbname=users"
		}, ""},
		{"directory without url", func(c *Config) { c.DatabaseBackend = "directory" }, "directory.url"},
		{"directory zero timeout", func(c *Config) {
			c.DatabaseBackend = "directory"
			c.DirectoryURL = "http://directory.local"
			c.DirectoryTimeout = 0
		}, "DIRECTORY_TIMEOUT"},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "redis" }, "cache.backend"},
		{"cache disabled", func(c *Config) { c.CacheBackend = "none" }, ""},
		{"non-positive warm id", func(c *Config) { c.TrackedUserIDs = []int64{100, 0} }, "user_ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RaisesRequestTimeoutAboveDirectoryTimeout(t *testing.T) {
	cfg := &Config{
		DatabaseBackend:  "directory",
		DirectoryURL:     "http://directory.local",
		DirectoryTimeout: 5 * time.Second,
		RequestTimeout:   2 * time.Second,
		CacheBackend:     "none",
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.RequestTimeout != 6*time.Second {
		t.Errorf("RequestTimeout = %v, want 6s", cfg.RequestTimeout)
	}
}

func TestLoad_WarmingUserIDs(t *testing.T) {
	clearOverrides(t)

	cfg, err := loadFrom(t, strings.Replace(minimalEnvYAML, `  ttl: "5m"`, `  ttl: "5m"
  warming:
    enabled: true
    interval: "1m"
    user_ids: [100, 200]`, 1))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.WarmCache || cfg.WarmInterval != time.Minute {
		t.Errorf("warming = %v %v, want true 1m", cfg.WarmCache, cfg.WarmInterval)
	}
	if len(cfg.TrackedUserIDs) != 2 || cfg.TrackedUserIDs[0] != 100 || cfg.TrackedUserIDs[1] != 200 {
		t.Errorf("TrackedUserIDs = %v, want [100 200]", cfg.TrackedUserIDs)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore Chdir(%q): %v", prev, err)
		}
	})
}
