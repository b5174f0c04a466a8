// Package config loads the client configuration from an optional YAML file
// with SUMO_* environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Auth    AuthConfig    `yaml:"auth"`
	HTTP    HTTPConfig    `yaml:"http"`
	Search  SearchConfig  `yaml:"search"`
	Redis   RedisConfig   `yaml:"redis"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AuthConfig holds credentials and the API location.
type AuthConfig struct {
	AccessID  string `yaml:"accessId"`
	AccessKey string `yaml:"accessKey"`

	// Deployment is a region code (us1, us2, eu, au, ...) or a full API URL.
	Deployment string `yaml:"deployment"`

	// BaseURL overrides the URL derived from Deployment.
	BaseURL string `yaml:"baseUrl"`
}

// HTTPConfig controls the resilient HTTP client.
type HTTPConfig struct {
	MaxRetries        int           `yaml:"maxRetries"`
	RetryBaseDelay    time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay     time.Duration `yaml:"retryMaxDelay"`
	MaxConnections    int           `yaml:"maxConnections"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	DialTimeout       time.Duration `yaml:"dialTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	UserAgent         string        `yaml:"userAgent"`

	// Debug logs request and response bodies.
	Debug bool `yaml:"debug"`
}

// SearchConfig controls polling and result retrieval.
type SearchConfig struct {
	InitialPollInterval time.Duration `yaml:"initialPollInterval"`
	MaxPollInterval     time.Duration `yaml:"maxPollInterval"`
	PollBackoffFactor   float64       `yaml:"pollBackoffFactor"`
	Timeout             time.Duration `yaml:"timeout"`
	DeleteTimeout       time.Duration `yaml:"deleteTimeout"`
	PageSize            int           `yaml:"pageSize"`
	ParallelPagination  bool          `yaml:"parallelPagination"`
	MaxWorkers          int           `yaml:"maxWorkers"`
}

// RedisConfig holds the optional shared Redis connection.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig controls the search result cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	MemoryEntries int           `yaml:"memoryEntries"`
}

// LoggingConfig controls log level and output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
	Async  bool   `yaml:"async"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			Deployment: "us2",
		},
		HTTP: HTTPConfig{
			MaxRetries:     3,
			RetryBaseDelay: 1 * time.Second,
			RetryMaxDelay:  30 * time.Second,
			MaxConnections: 10,
			RequestTimeout: 60 * time.Second,
			DialTimeout:    10 * time.Second,
			UserAgent:      "sumo-search-client/0.1.0",
		},
		Search: SearchConfig{
			InitialPollInterval: 5 * time.Second,
			MaxPollInterval:     20 * time.Second,
			PollBackoffFactor:   1.5,
			Timeout:             300 * time.Second,
			DeleteTimeout:       30 * time.Second,
			PageSize:            10000,
			ParallelPagination:  true,
			MaxWorkers:          10,
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			MemoryEntries: 128,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file (if path is not empty) over the defaults and
// applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveBaseURL returns the API base URL.
func (c *Config) ResolveBaseURL() string {
	if c.Auth.BaseURL != "" {
		return strings.TrimSuffix(c.Auth.BaseURL, "/")
	}
	return DeploymentURL(c.Auth.Deployment)
}

// DeploymentURL maps a deployment code to its API base URL. Values starting
// with http are returned unchanged.
func DeploymentURL(deployment string) string {
	switch {
	case strings.HasPrefix(deployment, "http"):
		return strings.TrimSuffix(deployment, "/")
	case deployment == "" || deployment == "us2":
		return "https://api.us2.sumologic.com/api/v1"
	case deployment == "us1":
		return "https://api.sumologic.com/api/v1"
	default:
		return "https://api." + deployment + ".sumologic.com/api/v1"
	}
}

// WebUIBaseURL returns the web UI root matching the deployment.
func (c *Config) WebUIBaseURL() string {
	api := c.ResolveBaseURL()
	host := strings.TrimPrefix(strings.TrimPrefix(api, "https://"), "http://")
	host, _, _ = strings.Cut(host, "/")
	switch {
	case host == "api.sumologic.com":
		return "https://service.sumologic.com"
	case strings.HasPrefix(host, "api."):
		return "https://service." + strings.TrimPrefix(host, "api.")
	default:
		return "https://" + host
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.AccessID == "" {
		errs = append(errs, errors.New("SUMO_ACCESS_ID not set"))
	}
	if c.Auth.AccessKey == "" {
		errs = append(errs, errors.New("SUMO_ACCESS_KEY not set"))
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("http.maxRetries must be >= 0 (got %d)", c.HTTP.MaxRetries))
	}
	if c.HTTP.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("http.maxConnections must be > 0 (got %d)", c.HTTP.MaxConnections))
	}
	if c.HTTP.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("http.requestsPerSecond must be >= 0 (got %g)", c.HTTP.RequestsPerSecond))
	}
	if c.Search.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("search.pageSize must be > 0 (got %d)", c.Search.PageSize))
	}
	if c.Search.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("search.maxWorkers must be > 0 (got %d)", c.Search.MaxWorkers))
	}
	if c.Search.PollBackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("search.pollBackoffFactor must be >= 1 (got %g)", c.Search.PollBackoffFactor))
	}
	if c.Search.InitialPollInterval <= 0 || c.Search.MaxPollInterval < c.Search.InitialPollInterval {
		errs = append(errs, fmt.Errorf("search poll intervals invalid (initial %s, max %s)",
			c.Search.InitialPollInterval, c.Search.MaxPollInterval))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("search.timeout must be > 0 (got %s)", c.Search.Timeout))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads SUMO_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", name, v))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid number %q", name, v))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", name, v))
				return
			}
			*dst = b
		}
	}
	// Durations accept Go syntax ("90s") or plain seconds ("90").
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = time.Duration(secs * float64(time.Second))
				return
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
				return
			}
			*dst = d
		}
	}

	str("SUMO_ACCESS_ID", &cfg.Auth.AccessID)
	str("SUMO_ACCESS_KEY", &cfg.Auth.AccessKey)
	str("SUMO_DEPLOYMENT", &cfg.Auth.Deployment)
	str("SUMO_BASE_URL", &cfg.Auth.BaseURL)
	boolean("SUMO_DEBUG", &cfg.HTTP.Debug)
	integer("SUMO_MAX_RETRIES", &cfg.HTTP.MaxRetries)
	duration("SUMO_RETRY_BASE_DELAY", &cfg.HTTP.RetryBaseDelay)
	duration("SUMO_RETRY_MAX_DELAY", &cfg.HTTP.RetryMaxDelay)
	integer("SUMO_MAX_CONNECTIONS", &cfg.HTTP.MaxConnections)
	float("SUMO_REQUESTS_PER_SECOND", &cfg.HTTP.RequestsPerSecond)
	duration("SUMO_POLL_INITIAL_INTERVAL", &cfg.Search.InitialPollInterval)
	duration("SUMO_POLL_MAX_INTERVAL", &cfg.Search.MaxPollInterval)
	float("SUMO_POLL_BACKOFF_FACTOR", &cfg.Search.PollBackoffFactor)
	duration("SUMO_TIMEOUT", &cfg.Search.Timeout)
	integer("SUMO_PAGE_SIZE", &cfg.Search.PageSize)
	integer("SUMO_MAX_WORKERS", &cfg.Search.MaxWorkers)
	boolean("SUMO_PARALLEL_PAGINATION", &cfg.Search.ParallelPagination)
	str("SUMO_REDIS_ADDR", &cfg.Redis.Addr)
	str("SUMO_REDIS_PASSWORD", &cfg.Redis.Password)
	duration("SUMO_CACHE_TTL", &cfg.Cache.TTL)
	str("SUMO_LOG_LEVEL", &cfg.Logging.Level)
	str("SUMO_LOG_FILE", &cfg.Logging.File)

	if cfg.HTTP.Debug && os.Getenv("SUMO_LOG_LEVEL") == "" {
		cfg.Logging.Level = "debug"
	}
	return errors.Join(errs...)
}
