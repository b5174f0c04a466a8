package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sumo.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Auth.Deployment != "us2" {
		t.Errorf("Deployment = %q, want us2", cfg.Auth.Deployment)
	}
	if cfg.Search.InitialPollInterval != 5*time.Second || cfg.Search.MaxPollInterval != 20*time.Second {
		t.Errorf("poll intervals = %s/%s, want 5s/20s", cfg.Search.InitialPollInterval, cfg.Search.MaxPollInterval)
	}
	if cfg.Search.PollBackoffFactor != 1.5 {
		t.Errorf("PollBackoffFactor = %g, want 1.5", cfg.Search.PollBackoffFactor)
	}
	if cfg.Search.Timeout != 300*time.Second {
		t.Errorf("Timeout = %s, want 300s", cfg.Search.Timeout)
	}
	if cfg.Search.PageSize != 10000 || !cfg.Search.ParallelPagination {
		t.Errorf("pagination = %d/%v, want 10000/true", cfg.Search.PageSize, cfg.Search.ParallelPagination)
	}
	if cfg.HTTP.MaxRetries != 3 || cfg.HTTP.MaxConnections != 10 {
		t.Errorf("http = retries %d conns %d, want 3/10", cfg.HTTP.MaxRetries, cfg.HTTP.MaxConnections)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ResolveBaseURL() != "https://api.us2.sumologic.com/api/v1" {
		t.Errorf("ResolveBaseURL() = %q", cfg.ResolveBaseURL())
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
auth:
  accessId: suFILE
  accessKey: file-secret
  deployment: eu
http:
  maxRetries: 5
  retryBaseDelay: 250ms
search:
  initialPollInterval: 2s
  pageSize: 500
  parallelPagination: false
redis:
  addr: localhost:6379
cache:
  enabled: true
  ttl: 10m
logging:
  level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.AccessID != "suFILE" || cfg.Auth.AccessKey != "file-secret" {
		t.Errorf("credentials = %q/%q", cfg.Auth.AccessID, cfg.Auth.AccessKey)
	}
	if got := cfg.ResolveBaseURL(); got != "https://api.eu.sumologic.com/api/v1" {
		t.Errorf("ResolveBaseURL() = %q", got)
	}
	if cfg.HTTP.MaxRetries != 5 || cfg.HTTP.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("retry = %d/%s, want 5/250ms", cfg.HTTP.MaxRetries, cfg.HTTP.RetryBaseDelay)
	}
	if cfg.Search.InitialPollInterval != 2*time.Second {
		t.Errorf("InitialPollInterval = %s, want 2s", cfg.Search.InitialPollInterval)
	}
	// Unset fields keep their defaults.
	if cfg.Search.MaxPollInterval != 20*time.Second {
		t.Errorf("MaxPollInterval = %s, want default 20s", cfg.Search.MaxPollInterval)
	}
	if cfg.Search.PageSize != 500 || cfg.Search.ParallelPagination {
		t.Errorf("pagination = %d/%v, want 500/false", cfg.Search.PageSize, cfg.Search.ParallelPagination)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 10*time.Minute || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("cache = %+v redis = %+v", cfg.Cache, cfg.Redis)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}

	path := writeConfig(t, "auth: [not, a, map]\n")
	if _, err := Load(path); err == nil {
		t.Error("Load(malformed) error = nil, want error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "auth:\n  accessId: suFILE\n  deployment: eu\n")

	t.Setenv("SUMO_ACCESS_ID", "suENV")
	t.Setenv("SUMO_ACCESS_KEY", "env-secret")
	t.Setenv("SUMO_DEPLOYMENT", "us1")
	t.Setenv("SUMO_MAX_RETRIES", "7")
	t.Setenv("SUMO_RETRY_BASE_DELAY", "0.5")
	t.Setenv("SUMO_RETRY_MAX_DELAY", "2m")
	t.Setenv("SUMO_POLL_INITIAL_INTERVAL", "1")
	t.Setenv("SUMO_POLL_MAX_INTERVAL", "10")
	t.Setenv("SUMO_POLL_BACKOFF_FACTOR", "2")
	t.Setenv("SUMO_TIMEOUT", "600")
	t.Setenv("SUMO_PAGE_SIZE", "2500")
	t.Setenv("SUMO_MAX_CONNECTIONS", "4")
	t.Setenv("SUMO_MAX_WORKERS", "3")
	t.Setenv("SUMO_PARALLEL_PAGINATION", "false")
	t.Setenv("SUMO_REQUESTS_PER_SECOND", "4")
	t.Setenv("SUMO_REDIS_ADDR", "redis:6379")
	t.Setenv("SUMO_CACHE_TTL", "30s")
	t.Setenv("SUMO_LOG_FILE", "/tmp/sumo.log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"AccessID", cfg.Auth.AccessID, "suENV"},
		{"AccessKey", cfg.Auth.AccessKey, "env-secret"},
		{"BaseURL", cfg.ResolveBaseURL(), "https://api.sumologic.com/api/v1"},
		{"MaxRetries", cfg.HTTP.MaxRetries, 7},
		{"RetryBaseDelay", cfg.HTTP.RetryBaseDelay, 500 * time.Millisecond},
		{"RetryMaxDelay", cfg.HTTP.RetryMaxDelay, 2 * time.Minute},
		{"InitialPollInterval", cfg.Search.InitialPollInterval, time.Second},
		{"MaxPollInterval", cfg.Search.MaxPollInterval, 10 * time.Second},
		{"PollBackoffFactor", cfg.Search.PollBackoffFactor, 2.0},
		{"Timeout", cfg.Search.Timeout, 600 * time.Second},
		{"PageSize", cfg.Search.PageSize, 2500},
		{"MaxConnections", cfg.HTTP.MaxConnections, 4},
		{"MaxWorkers", cfg.Search.MaxWorkers, 3},
		{"ParallelPagination", cfg.Search.ParallelPagination, false},
		{"RequestsPerSecond", cfg.HTTP.RequestsPerSecond, 4.0},
		{"RedisAddr", cfg.Redis.Addr, "redis:6379"},
		{"CacheTTL", cfg.Cache.TTL, 30 * time.Second},
		{"LogFile", cfg.Logging.File, "/tmp/sumo.log"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_DebugRaisesLogLevel(t *testing.T) {
	t.Setenv("SUMO_DEBUG", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.HTTP.Debug || cfg.Logging.Level != "debug" {
		t.Errorf("Debug = %v level = %q, want true/debug", cfg.HTTP.Debug, cfg.Logging.Level)
	}

	t.Setenv("SUMO_LOG_LEVEL", "error")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("explicit SUMO_LOG_LEVEL = %q, want error", cfg.Logging.Level)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("SUMO_MAX_RETRIES", "many")
	t.Setenv("SUMO_DEBUG", "perhaps")
	t.Setenv("SUMO_TIMEOUT", "forever")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	for _, name := range []string{"SUMO_MAX_RETRIES", "SUMO_DEBUG", "SUMO_TIMEOUT"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestDeploymentURL(t *testing.T) {
	tests := []struct {
		deployment string
		want       string
	}{
		{"", "https://api.us2.sumologic.com/api/v1"},
		{"us2", "https://api.us2.sumologic.com/api/v1"},
		{"us1", "https://api.sumologic.com/api/v1"},
		{"eu", "https://api.eu.sumologic.com/api/v1"},
		{"au", "https://api.au.sumologic.com/api/v1"},
		{"jp", "https://api.jp.sumologic.com/api/v1"},
		{"http://localhost:8080/api/v1/", "http://localhost:8080/api/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.deployment, func(t *testing.T) {
			if got := DeploymentURL(tt.deployment); got != tt.want {
				t.Errorf("DeploymentURL(%q) = %q, want %q", tt.deployment, got, tt.want)
			}
		})
	}
}

func TestResolveBaseURL_ExplicitWins(t *testing.T) {
	cfg := Default()
	cfg.Auth.Deployment = "eu"
	cfg.Auth.BaseURL = "https://proxy.internal/api/v1/"

	if got := cfg.ResolveBaseURL(); got != "https://proxy.internal/api/v1" {
		t.Errorf("ResolveBaseURL() = %q", got)
	}
}

func TestWebUIBaseURL(t *testing.T) {
	tests := []struct {
		deployment string
		want       string
	}{
		{"us1", "https://service.sumologic.com"},
		{"us2", "https://service.us2.sumologic.com"},
		{"eu", "https://service.eu.sumologic.com"},
		{"http://localhost:8080/api/v1", "https://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.deployment, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.Deployment = tt.deployment
			if got := cfg.WebUIBaseURL(); got != tt.want {
				t.Errorf("WebUIBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.AccessID = "suABC"
		cfg.Auth.AccessKey = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing id", func(c *Config) { c.Auth.AccessID = "" }, "SUMO_ACCESS_ID"},
		{"missing key", func(c *Config) { c.Auth.AccessKey = "" }, "SUMO_ACCESS_KEY"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "maxRetries"},
		{"zero connections", func(c *Config) { c.HTTP.MaxConnections = 0 }, "maxConnections"},
		{"negative rate", func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, "requestsPerSecond"},
		{"zero page size", func(c *Config) { c.Search.PageSize = 0 }, "pageSize"},
		{"zero workers", func(c *Config) { c.Search.MaxWorkers = 0 }, "maxWorkers"},
		{"shrinking backoff", func(c *Config) { c.Search.PollBackoffFactor = 0.5 }, "pollBackoffFactor"},
		{"max below initial", func(c *Config) { c.Search.MaxPollInterval = time.Second }, "poll intervals"},
		{"zero timeout", func(c *Config) { c.Search.Timeout = 0 }, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
