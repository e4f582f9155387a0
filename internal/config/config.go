package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxConcurrency    int    `json:"max_concurrency" yaml:"max_concurrency"`
	MaxTickers        int    `json:"max_tickers" yaml:"max_tickers"`
	MetricsEnabled    bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
}

type Cache struct {
	Path          string `json:"path" yaml:"path"`
	FreshForSec   int    `json:"fresh_for_sec" yaml:"fresh_for_sec"`
	RetryAfterSec int    `json:"retry_after_sec" yaml:"retry_after_sec"`
}

type Refresh struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	IntervalSec    int  `json:"interval_sec" yaml:"interval_sec"`
	MaxConcurrency int  `json:"max_concurrency" yaml:"max_concurrency"`
}

type Auth struct {
	KeysFile string `json:"keys_file" yaml:"keys_file"`
}

// Quote configures the upstream market-data source and the wrappers around it.
type Quote struct {
	Backend              string `json:"backend" yaml:"backend"`
	Endpoint             string `json:"endpoint" yaml:"endpoint"`
	TimeoutSec           int    `json:"timeout_sec" yaml:"timeout_sec"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int    `json:"burst" yaml:"burst"`
	MinRequestIntervalMs int    `json:"min_request_interval_ms" yaml:"min_request_interval_ms"`
	MaxRetries           int    `json:"max_retries" yaml:"max_retries"`
	BackoffMinMs         int    `json:"backoff_min_ms" yaml:"backoff_min_ms"`
	BackoffMaxMs         int    `json:"backoff_max_ms" yaml:"backoff_max_ms"`
	BreakerFailures      int    `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerDelaySec      int    `json:"breaker_delay_sec" yaml:"breaker_delay_sec"`
}

type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type Config struct {
	Server  Server  `json:"server" yaml:"server"`
	Cache   Cache   `json:"cache" yaml:"cache"`
	Refresh Refresh `json:"refresh" yaml:"refresh"`
	Auth    Auth    `json:"auth" yaml:"auth"`
	Quote   Quote   `json:"quote" yaml:"quote"`
	Log     Log     `json:"log" yaml:"log"`
}

const (
	BackendChart     = "chart"
	BackendFinanceGo = "finance-go"
)

func Default() Config {
	return Config{
		Server: Server{
			Port:              "5000",
			RequestTimeoutSec: 35,
			MaxConcurrency:    8,
			MaxTickers:        1000,
			MetricsEnabled:    true,
		},
		Cache: Cache{
			Path:          "stock_cache.json",
			FreshForSec:   3600,
			RetryAfterSec: 86400,
		},
		Refresh: Refresh{
			Enabled:        true,
			IntervalSec:    1800,
			MaxConcurrency: 4,
		},
		Auth: Auth{KeysFile: "api_keys.json"},
		Quote: Quote{
			Backend:              BackendChart,
			Endpoint:             "https://query1.finance.yahoo.com",
			TimeoutSec:           10,
			MaxRequestsPerMinute: 120,
			Burst:                5,
			MaxRetries:           2,
			BackoffMinMs:         200,
			BackoffMaxMs:         2000,
			BreakerFailures:      5,
			BreakerDelaySec:      30,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// Load reads the config file at path. If path is empty, config.json, config.yaml
// and config.yml are tried in the working directory; a missing file yields
// defaults. Environment variables are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Server.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("server.max_concurrency must be positive"))
	}
	if c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is empty"))
	}
	if c.Cache.FreshForSec <= 0 {
		errs = append(errs, errors.New("cache.fresh_for_sec must be positive"))
	}
	if c.Cache.RetryAfterSec <= 0 {
		errs = append(errs, errors.New("cache.retry_after_sec must be positive"))
	}
	if c.Refresh.IntervalSec <= 0 {
		errs = append(errs, errors.New("refresh.interval_sec must be positive"))
	}
	if c.Refresh.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("refresh.max_concurrency must be positive"))
	}
	switch c.Quote.Backend {
	case BackendChart, BackendFinanceGo:
	default:
		errs = append(errs, fmt.Errorf("quote.backend %q is not supported", c.Quote.Backend))
	}
	if c.Quote.TimeoutSec <= 0 {
		errs = append(errs, errors.New("quote.timeout_sec must be positive"))
	}
	if c.Quote.MaxRetries < 0 {
		errs = append(errs, errors.New("quote.max_retries must not be negative"))
	}
	if c.Quote.BackoffMaxMs < c.Quote.BackoffMinMs {
		errs = append(errs, errors.New("quote.backoff_max_ms is below quote.backoff_min_ms"))
	}
	if worst := c.Quote.WorstCase(); c.Server.RequestTimeout() < worst {
		errs = append(errs, fmt.Errorf("server.request_timeout_sec (%s) is shorter than one symbol's worst-case fetch (%s)",
			c.Server.RequestTimeout(), worst))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Cache) FreshFor() time.Duration   { return time.Duration(c.FreshForSec) * time.Second }
func (c Cache) RetryAfter() time.Duration { return time.Duration(c.RetryAfterSec) * time.Second }
func (r Refresh) Interval() time.Duration { return time.Duration(r.IntervalSec) * time.Second }
func (q Quote) Timeout() time.Duration    { return time.Duration(q.TimeoutSec) * time.Second }
func (q Quote) BackoffMin() time.Duration { return time.Duration(q.BackoffMinMs) * time.Millisecond }
func (q Quote) BackoffMax() time.Duration { return time.Duration(q.BackoffMaxMs) * time.Millisecond }

// WorstCase is the longest one symbol's fetch can take once a rate limiter
// token is held: every attempt times out and every backoff is at its max.
func (q Quote) WorstCase() time.Duration {
	return q.Timeout()*time.Duration(q.MaxRetries+1) + q.BackoffMax()*time.Duration(q.MaxRetries)
}
func (s Server) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v, ok := envInt("REQUEST_TIMEOUT_SEC"); ok && v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v, ok := envBool("METRICS_ENABLED"); ok {
		cfg.Server.MetricsEnabled = v
	}
	if v := os.Getenv("CACHE_FILE"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("API_KEYS_FILE"); v != "" {
		cfg.Auth.KeysFile = v
	}
	if v, ok := envInt("REFRESH_INTERVAL_SEC"); ok && v > 0 {
		cfg.Refresh.IntervalSec = v
	}
	if v, ok := envBool("REFRESH_ENABLED"); ok {
		cfg.Refresh.Enabled = v
	}
	if v := os.Getenv("QUOTE_BACKEND"); v != "" {
		cfg.Quote.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("QUOTE_ENDPOINT"); v != "" {
		cfg.Quote.Endpoint = v
	}
	if v, ok := envInt("QUOTE_TIMEOUT_SEC"); ok && v > 0 {
		cfg.Quote.TimeoutSec = v
	}
	if v, ok := envInt("QUOTE_MAX_RPM"); ok && v >= 0 {
		cfg.Quote.MaxRequestsPerMinute = v
	}
	if v, ok := envInt("QUOTE_BURST"); ok && v > 0 {
		cfg.Quote.Burst = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return x, true
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}
