// Package config loads KatScan configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Sternrassler/katscan/pkg/client"
	"github.com/Sternrassler/katscan/pkg/logging"
	"github.com/Sternrassler/katscan/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBaseURL   = "KATSCAN_API_BASE_URL"
	EnvStatusURL = "KATSCAN_STATUS_URL"
	EnvRedisURL  = "REDIS_URL"
	EnvPort      = "PORT"
	EnvUserAgent = "USER_AGENT"
	EnvLogLevel  = "LOG_LEVEL"
)

// Config is the full KatScan configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Redis   RedisConfig   `yaml:"redis"`
	Server  ServerConfig  `yaml:"server"`
	Batch   BatchConfig   `yaml:"batch"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the upstream KatAPI client.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	StatusURL      string        `yaml:"status_url"` // KRC-721 status; empty disables the proxy route
	UserAgent      string        `yaml:"user_agent"`
	PageSize       int           `yaml:"page_size"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	ThrottleDelay  time.Duration `yaml:"throttle_delay"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
}

// RedisConfig configures the shared cache. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig configures the proxy service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BatchConfig configures fetch-all requests.
type BatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
}

// StoreConfig configures the snapshot database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	api := client.DefaultConfig(nil, "KatScan/1.0 (+https://github.com/Sternrassler/katscan)")
	batch := pagination.DefaultConfig()

	return &Config{
		API: APIConfig{
			BaseURL:        api.BaseURL,
			StatusURL:      client.DefaultStatusURL,
			UserAgent:      api.UserAgent,
			PageSize:       api.PageSize,
			RateLimit:      api.RateLimit,
			Burst:          api.Burst,
			ThrottleDelay:  api.ThrottleDelay,
			MaxRetries:     api.MaxRetries,
			InitialBackoff: api.InitialBackoff,
			Timeout:        api.Timeout,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Batch: BatchConfig{
			MaxConcurrency: batch.MaxConcurrency,
			PageTimeout:    batch.Timeout,
		},
		Store: StoreConfig{
			Path: "katscan.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvStatusURL); v != "" {
		c.API.StatusURL = v
	}
	if v := os.Getenv(EnvUserAgent); v != "" {
		c.API.UserAgent = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if c.API.UserAgent == "" {
		return fmt.Errorf("api.user_agent is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.StatusURL != "" {
		u, err := url.Parse(c.API.StatusURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("api.status_url %q is not an absolute URL", c.API.StatusURL)
		}
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be > 0 (got %d)", c.API.PageSize)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must be >= 0 (got %d)", c.API.MaxRetries)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	if c.Batch.MaxConcurrency <= 0 {
		return fmt.Errorf("batch.max_concurrency must be > 0 (got %d)", c.Batch.MaxConcurrency)
	}
	if c.Redis.URL != "" {
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// NewRedisClient returns a client for Redis.URL, or nil when Redis is disabled.
func (c *Config) NewRedisClient() (*redis.Client, error) {
	if c.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// ClientConfig builds the KatAPI client configuration.
func (c *Config) ClientConfig(redisClient *redis.Client) client.Config {
	return client.Config{
		BaseURL:        c.API.BaseURL,
		UserAgent:      c.API.UserAgent,
		Redis:          redisClient,
		RateLimit:      c.API.RateLimit,
		Burst:          c.API.Burst,
		ThrottleDelay:  c.API.ThrottleDelay,
		PageSize:       c.API.PageSize,
		MaxRetries:     c.API.MaxRetries,
		InitialBackoff: c.API.InitialBackoff,
		Timeout:        c.API.Timeout,
	}
}

// StatusClientConfig builds the client for the KRC-721 status endpoint. It
// never shares Redis: the budget keys there belong to KatAPI.
func (c *Config) StatusClientConfig() client.Config {
	cfg := c.ClientConfig(nil)
	cfg.BaseURL = c.API.StatusURL
	return cfg
}

// BatchConfig builds the batch fetcher configuration.
func (c *Config) BatchConfig() pagination.Config {
	return pagination.Config{
		MaxConcurrency: c.Batch.MaxConcurrency,
		Timeout:        c.Batch.PageTimeout,
	}
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// Addr returns the listen address of the proxy.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
