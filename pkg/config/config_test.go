package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/katscan/pkg/client"
	"github.com/Sternrassler/katscan/pkg/logging"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvBaseURL, EnvStatusURL, EnvRedisURL, EnvPort, EnvUserAgent, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.BaseURL != client.DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, client.DefaultBaseURL)
	}
	if cfg.API.PageSize != client.DefaultPageSize {
		t.Errorf("API.PageSize = %d, want %d", cfg.API.PageSize, client.DefaultPageSize)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis.URL = %q, want disabled", cfg.Redis.URL)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.PageSize != client.DefaultPageSize {
		t.Errorf("API.PageSize = %d, want default", cfg.API.PageSize)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "katscan.yaml")
	data := `
api:
  page_size: 250
  initial_backoff: 2s
redis:
  url: redis://localhost:6379/2
batch:
  max_concurrency: 8
logging:
  level: debug
  pretty: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.PageSize != 250 {
		t.Errorf("API.PageSize = %d, want 250", cfg.API.PageSize)
	}
	if cfg.API.InitialBackoff != 2*time.Second {
		t.Errorf("API.InitialBackoff = %v, want 2s", cfg.API.InitialBackoff)
	}
	if cfg.API.BaseURL != client.DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want default kept", cfg.API.BaseURL)
	}
	if cfg.Batch.MaxConcurrency != 8 {
		t.Errorf("Batch.MaxConcurrency = %d, want 8", cfg.Batch.MaxConcurrency)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Pretty {
		t.Errorf("Logging = %+v, want debug pretty", cfg.Logging)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("api: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted invalid YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://localhost:9999/api")
	t.Setenv(EnvRedisURL, "redis://cache:6379/0")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvUserAgent, "katscan-test/0.1")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvStatusURL, "http://localhost:9999/status")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:9999/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Redis.URL != "redis://cache:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Server.Port != 9090 || cfg.Addr() != ":9090" {
		t.Errorf("Server.Port = %d, Addr() = %q", cfg.Server.Port, cfg.Addr())
	}
	if cfg.API.UserAgent != "katscan-test/0.1" {
		t.Errorf("API.UserAgent = %q", cfg.API.UserAgent)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.API.StatusURL != "http://localhost:9999/status" {
		t.Errorf("API.StatusURL = %q", cfg.API.StatusURL)
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "eighty")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), EnvPort) {
		t.Errorf("Load() error = %v, want %s parse error", err, EnvPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no user agent", mutate: func(c *Config) { c.API.UserAgent = "" }, wantErr: "user_agent"},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: "base_url"},
		{name: "relative status url", mutate: func(c *Config) { c.API.StatusURL = "status" }, wantErr: "status_url"},
		{name: "status route disabled", mutate: func(c *Config) { c.API.StatusURL = "" }},
		{name: "zero page size", mutate: func(c *Config) { c.API.PageSize = 0 }, wantErr: "page_size"},
		{name: "negative retries", mutate: func(c *Config) { c.API.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "no batch workers", mutate: func(c *Config) { c.Batch.MaxConcurrency = 0 }, wantErr: "max_concurrency"},
		{name: "bad redis url", mutate: func(c *Config) { c.Redis.URL = "http://nope" }, wantErr: "redis.url"},
		{name: "unknown level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "katscan.yaml")
	cfg := DefaultConfig()
	cfg.API.PageSize = 500
	cfg.API.Timeout = 45 * time.Second
	cfg.Store.Path = "/var/lib/katscan/snapshots.db"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.API.PageSize != 500 || loaded.API.Timeout != 45*time.Second {
		t.Errorf("API = %+v, want page size 500 and 45s timeout", loaded.API)
	}
	if loaded.Store.Path != cfg.Store.Path {
		t.Errorf("Store.Path = %q, want %q", loaded.Store.Path, cfg.Store.Path)
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.MaxRetries = 4
	cfg.Batch.MaxConcurrency = 2
	cfg.Logging.Level = "error"

	cc := cfg.ClientConfig(nil)
	if cc.MaxRetries != 4 || cc.Redis != nil || cc.BaseURL != cfg.API.BaseURL {
		t.Errorf("ClientConfig() = %+v", cc)
	}

	sc := cfg.StatusClientConfig()
	if sc.BaseURL != client.DefaultStatusURL || sc.Redis != nil || sc.MaxRetries != 4 {
		t.Errorf("StatusClientConfig() = %+v", sc)
	}

	bc := cfg.BatchConfig()
	if bc.MaxConcurrency != 2 || bc.Timeout != cfg.Batch.PageTimeout {
		t.Errorf("BatchConfig() = %+v", bc)
	}

	lc := cfg.LoggingConfig()
	if lc.Level != logging.LevelError {
		t.Errorf("LoggingConfig().Level = %q, want error", lc.Level)
	}
}

func TestNewRedisClient(t *testing.T) {
	cfg := DefaultConfig()

	rc, err := cfg.NewRedisClient()
	if err != nil || rc != nil {
		t.Errorf("NewRedisClient() with no URL = %v, %v; want nil, nil", rc, err)
	}

	cfg.Redis.URL = "redis://localhost:6390/3"
	rc, err = cfg.NewRedisClient()
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer rc.Close()
	if rc.Options().Addr != "localhost:6390" || rc.Options().DB != 3 {
		t.Errorf("options = %s db %d", rc.Options().Addr, rc.Options().DB)
	}
}
