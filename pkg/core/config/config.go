// Package config loads loader settings from a YAML file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is passed explicitly to every collaborator at construction.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Loader   LoaderConfig   `yaml:"loader"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// FetchConfig controls page fetching.
type FetchConfig struct {
	BaseURL           string        `yaml:"base_url"`
	SearchURL         string        `yaml:"search_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	Backoff           time.Duration `yaml:"backoff"`
	RetryStatuses     []int         `yaml:"retry_statuses"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// ProxyConfig points at the proxy and user agent lists.
type ProxyConfig struct {
	ProxiesFile    string `yaml:"proxies_file"`
	UserAgentsFile string `yaml:"user_agents_file"`
}

// LoaderConfig controls the batch drivers.
type LoaderConfig struct {
	Index        string        `yaml:"index"`
	Workers      int           `yaml:"workers"`
	RefreshAfter time.Duration `yaml:"refresh_after"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{MaxConns: 4},
		Fetch: FetchConfig{
			BaseURL:           "https://www.screener.in",
			SearchURL:         "https://www.screener.in/api/company/search/",
			Timeout:           10 * time.Second,
			MaxRetries:        3,
			Backoff:           100 * time.Millisecond,
			RetryStatuses:     []int{500, 502, 503, 504, 400, 401, 402, 403},
			RequestsPerSecond: 1,
		},
		Proxy: ProxyConfig{
			ProxiesFile:    "proxies.txt",
			UserAgentsFile: "user_agents.txt",
		},
		Loader: LoaderConfig{
			Index:        "NSE",
			Workers:      3,
			RefreshAfter: 30 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "production"},
	}
}

// Load reads .env, then the YAML file at path, then environment overrides.
// A missing .env or YAML file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.UnmarshalStrict(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("STONKS_PROXIES_FILE"); v != "" {
		c.Proxy.ProxiesFile = v
	}
	if v := os.Getenv("STONKS_USER_AGENTS_FILE"); v != "" {
		c.Proxy.UserAgentsFile = v
	}
	if v := os.Getenv("STONKS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STONKS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STONKS_WORKERS %q: %w", v, err)
		}
		c.Loader.Workers = n
	}
	return nil
}

// Validate checks settings every driver depends on.
func (c *Config) Validate() error {
	if c.Loader.Workers < 1 {
		return fmt.Errorf("loader.workers must be at least 1, got %d", c.Loader.Workers)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetch.requests_per_second must be positive, got %v", c.Fetch.RequestsPerSecond)
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return nil
}
