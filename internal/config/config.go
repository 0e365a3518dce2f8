// Package config loads application configuration from an optional YAML/JSON
// file and environment variables. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreKind selects the credential store backend.
type StoreKind string

const (
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
	StoreFile     StoreKind = "file"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr       string        `yaml:"listenAddr"`
	Store            StoreKind     `yaml:"store"`
	DBPath           string        `yaml:"dbPath"`
	DatabaseURL      string        `yaml:"databaseUrl"`
	FilePath         string        `yaml:"filePath"`
	AdminAPIKey      string        `yaml:"adminApiKey"`
	UpstreamURL      string        `yaml:"upstreamUrl"`
	UpstreamTimeout  time.Duration `yaml:"upstreamTimeout"`
	UpstreamRPS      float64       `yaml:"upstreamRps"`
	FailureThreshold int           `yaml:"failureThreshold"`
	RedisAddr        string        `yaml:"redisAddr"`
	RedisPassword    string        `yaml:"redisPassword"`
	RedisChannel     string        `yaml:"redisChannel"`
}

// AdminEnabled reports whether the admin API should be mounted. Without a
// key every admin request would be unauthenticated, so the API stays off.
func (c *Config) AdminEnabled() bool {
	return c.AdminAPIKey != ""
}

// HasRedis reports whether events should be published to Redis.
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func defaults() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8990",
		Store:            StoreSQLite,
		DBPath:           "credpool.db",
		FilePath:         "credentials.json",
		UpstreamURL:      "https://usage.example.invalid",
		UpstreamTimeout:  15 * time.Second,
		UpstreamRPS:      2,
		FailureThreshold: 3,
		RedisChannel:     "credpool:events",
	}
}

// Load builds the configuration in three layers: defaults, the file named by
// CREDPOOL_CONFIG (if set), then CREDPOOL_* environment variables.
// DATABASE_URL is honored when CREDPOOL_DATABASE_URL is unset.
func Load() (*Config, error) {
	cfg := defaults()

	if path, ok := os.LookupEnv("CREDPOOL_CONFIG"); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	// JSON is a subset of YAML, so both formats go through the same decoder.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("CREDPOOL_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_STORE"); ok {
		cfg.Store = StoreKind(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := os.LookupEnv("CREDPOOL_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	} else if v, ok := os.LookupEnv("DATABASE_URL"); ok && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_FILE_PATH"); ok {
		cfg.FilePath = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_ADMIN_API_KEY"); ok {
		cfg.AdminAPIKey = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_UPSTREAM_URL"); ok {
		cfg.UpstreamURL = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_UPSTREAM_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CREDPOOL_UPSTREAM_TIMEOUT has invalid duration %q: %w", v, err)
		}
		cfg.UpstreamTimeout = parsed
	}
	if v, ok := os.LookupEnv("CREDPOOL_UPSTREAM_RPS"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CREDPOOL_UPSTREAM_RPS has invalid number %q: %w", v, err)
		}
		cfg.UpstreamRPS = parsed
	}
	if v, ok := os.LookupEnv("CREDPOOL_FAILURE_THRESHOLD"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CREDPOOL_FAILURE_THRESHOLD has invalid integer %q: %w", v, err)
		}
		cfg.FailureThreshold = parsed
	}
	if v, ok := os.LookupEnv("CREDPOOL_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_REDIS_PASSWORD"); ok {
		cfg.RedisPassword = v
	}
	if v, ok := os.LookupEnv("CREDPOOL_REDIS_CHANNEL"); ok {
		cfg.RedisChannel = v
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("store %q requires a database path", c.Store)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store %q requires CREDPOOL_DATABASE_URL or DATABASE_URL", c.Store)
		}
	case StoreFile:
		if c.FilePath == "" {
			return fmt.Errorf("store %q requires a file path", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q: want sqlite, postgres, or file", c.Store)
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}
	if c.UpstreamRPS <= 0 {
		return fmt.Errorf("upstream rps must be positive, got %v", c.UpstreamRPS)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.RedisAddr != "" && c.RedisChannel == "" {
		return fmt.Errorf("redis channel must not be empty when redis is configured")
	}
	return nil
}
