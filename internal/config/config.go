package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// DatabaseBackend names the registered collaborator backend: unconfigured, fixture, sqlite, postgres or directory.
	DatabaseBackend string
	SQLitePath      string
	PostgresDSN     string
	SeedDevUsers    bool

	DirectoryURL     string
	DirectoryToken   string
	DirectoryTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitFailureThreshold int
	CircuitSuccessThreshold int
	CircuitOpenTimeout      time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "none", "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	ReadyDelay       time.Duration
	OverloadWindow   time.Duration
	DegradedWindow   time.Duration
	DegradedErrorPct int

	WarmCache      bool
	WarmInterval   time.Duration
	TrackedUserIDs []int64

	LogLevel string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Backend      string `yaml:"backend"`
		SQLitePath   string `yaml:"sqlite_path"`
		PostgresDSN  string `yaml:"postgres_dsn"`
		SeedDevUsers bool   `yaml:"seed_dev_users"`
	} `yaml:"database"`

	Directory struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"directory"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warming struct {
			Enabled  bool    `yaml:"enabled"`
			Interval string  `yaml:"interval"`
			UserIDs  []int64 `yaml:"user_ids"`
		} `yaml:"warming"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		CircuitFailureThreshold int    `yaml:"circuit_failure_threshold"`
		CircuitSuccessThreshold int    `yaml:"circuit_success_threshold"`
		CircuitOpenTimeout      string `yaml:"circuit_open_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		ReadyDelay       string `yaml:"ready_delay"`
		OverloadWindow   string `yaml:"overload_window"`
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

type secretsFile struct {
	DirectoryToken string `yaml:"directory_token"`
}

// envOverrides are applied on top of the YAML file. Empty or zero means unset.
type envOverrides struct {
	DatabaseBackend  string        `env:"DATABASE_BACKEND"`
	SQLitePath       string        `env:"SQLITE_PATH"`
	PostgresDSN      string        `env:"POSTGRES_DSN"`
	DirectoryURL     string        `env:"DIRECTORY_URL"`
	DirectoryToken   string        `env:"DIRECTORY_TOKEN"`
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT"`
	CacheBackend     string        `env:"CACHE_BACKEND"`
	MemcachedAddrs   string        `env:"MEMCACHED_ADDRS"`
	ServerPort       string        `env:"SERVER_PORT"`
	LogLevel         string        `env:"LOG_LEVEL"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), the optional
// config/secrets.yaml, and env overrides. Call from project root.
func Load() (*Config, error) {
	envName := os.Getenv("ENV_NAME")
	if envName == "" {
		envName = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", envName+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := fromFile(&fc)

	if cfg.DirectoryToken == "" {
		token, err := loadSecretsToken(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.DirectoryToken = token
	}
	applyOverrides(cfg, &ov)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.DatabaseBackend = normalize(fc.Database.Backend)
	if cfg.DatabaseBackend == "" {
		cfg.DatabaseBackend = "fixture"
	}
	cfg.SQLitePath = strings.TrimSpace(fc.Database.SQLitePath)
	cfg.PostgresDSN = strings.TrimSpace(fc.Database.PostgresDSN)
	cfg.SeedDevUsers = fc.Database.SeedDevUsers

	cfg.DirectoryURL = strings.TrimSpace(fc.Directory.URL)
	cfg.DirectoryTimeout = parseDurationOrZero(fc.Directory.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.CacheBackend = normalize(fc.Cache.Backend)
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.WarmCache = fc.Cache.Warming.Enabled
	cfg.WarmInterval = parseDuration(fc.Cache.Warming.Interval, 10*time.Minute)
	cfg.TrackedUserIDs = fc.Cache.Warming.UserIDs

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CircuitFailureThreshold = fc.Reliability.CircuitFailureThreshold
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = 5
	}
	cfg.CircuitSuccessThreshold = fc.Reliability.CircuitSuccessThreshold
	if cfg.CircuitSuccessThreshold <= 0 {
		cfg.CircuitSuccessThreshold = 2
	}
	cfg.CircuitOpenTimeout = parseDuration(fc.Reliability.CircuitOpenTimeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.ReadyDelay = parseDurationOrZero(fc.Lifecycle.ReadyDelay, 3*time.Second)
	if cfg.ReadyDelay < 0 {
		cfg.ReadyDelay = 0
	}
	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.LogLevel = normalize(fc.Logging.Level)
	return cfg
}

func applyOverrides(cfg *Config, ov *envOverrides) {
	if v := normalize(ov.DatabaseBackend); v != "" {
		cfg.DatabaseBackend = v
	}
	if v := strings.TrimSpace(ov.SQLitePath); v != "" {
		cfg.SQLitePath = v
	}
	if v := strings.TrimSpace(ov.PostgresDSN); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(ov.DirectoryURL); v != "" {
		cfg.DirectoryURL = v
	}
	if ov.DirectoryToken != "" {
		cfg.DirectoryToken = ov.DirectoryToken
	}
	if ov.DirectoryTimeout != 0 {
		cfg.DirectoryTimeout = ov.DirectoryTimeout
	}
	if v := normalize(ov.CacheBackend); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(ov.MemcachedAddrs); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(ov.ServerPort); v != "" {
		cfg.ServerPort = v
	}
	if v := normalize(ov.LogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func loadSecretsToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.DirectoryToken, nil
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above DirectoryTimeout when the directory backend is used.
func validate(cfg *Config) error {
	switch cfg.DatabaseBackend {
	case "unconfigured", "fixture":
	case "sqlite":
		if cfg.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path (or SQLITE_PATH) required for sqlite backend")
		}
	case "postgres":
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn (or POSTGRES_DSN) required for postgres backend")
		}
	case "directory":
		if cfg.DirectoryURL == "" {
			return fmt.Errorf("directory.url (or DIRECTORY_URL) required for directory backend")
		}
		if cfg.DirectoryTimeout <= 0 {
			return fmt.Errorf("DIRECTORY_TIMEOUT must be positive")
		}
		if cfg.RequestTimeout <= cfg.DirectoryTimeout {
			cfg.RequestTimeout = cfg.DirectoryTimeout + time.Second
		}
	default:
		return fmt.Errorf("database.backend must be unconfigured, fixture, sqlite, postgres or directory, got %q", cfg.DatabaseBackend)
	}

	switch cfg.CacheBackend {
	case "none", "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be none, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	for _, id := range cfg.TrackedUserIDs {
		if id <= 0 {
			return fmt.Errorf("cache.warming.user_ids must be positive, got %d", id)
		}
	}
	return nil
}
