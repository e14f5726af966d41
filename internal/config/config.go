package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the placedex API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Resolver ResolverConfig `yaml:"resolver"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings for the fast index.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds durable store and key layout settings.
type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`   // SQLite data directory; ":memory:" for tests
	KeyPrefix string `yaml:"key_prefix"` // Redis key prefix
}

// ProviderConfig holds external location-data provider settings.
type ProviderConfig struct {
	Name           string        `yaml:"name"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	TimeoutSec     int           `yaml:"timeout_sec"`
	DailyCallLimit int64         `yaml:"daily_call_limit"` // 0 = unlimited
	Breaker        BreakerConfig `yaml:"breaker"`
	Retry          RetryConfig   `yaml:"retry"`
}

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	TimeoutSec       int `yaml:"timeout_sec"`
	HalfOpenMaxCalls int `yaml:"half_open_max_calls"`
}

// RetryConfig holds retry-with-backoff tuning.
type RetryConfig struct {
	MaxRetries  int     `yaml:"max_retries"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
}

// ResolverConfig holds three-tier resolution settings.
type ResolverConfig struct {
	MinResultsSearch       int `yaml:"min_results_search"`
	MinResultsAutocomplete int `yaml:"min_results_autocomplete"`
	DefaultLimit           int `yaml:"default_limit"`
	MaxLimit               int `yaml:"max_limit"`
	RequestDeadlineSec     int `yaml:"request_deadline_sec"`
	NegativeCacheTTLSec    int `yaml:"negative_cache_ttl_sec"`
	GeohashPrecision       int `yaml:"geohash_precision"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 15
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "placedex:"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "google_places"
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = 10
	}
	if c.Provider.Breaker.FailureThreshold <= 0 {
		c.Provider.Breaker.FailureThreshold = 5
	}
	if c.Provider.Breaker.TimeoutSec <= 0 {
		c.Provider.Breaker.TimeoutSec = 60
	}
	if c.Provider.Breaker.HalfOpenMaxCalls <= 0 {
		c.Provider.Breaker.HalfOpenMaxCalls = 1
	}
	if c.Provider.Retry.MaxRetries <= 0 {
		c.Provider.Retry.MaxRetries = 3
	}
	if c.Provider.Retry.BaseDelayMS <= 0 {
		c.Provider.Retry.BaseDelayMS = 1000
	}
	if c.Provider.Retry.MaxDelayMS <= 0 {
		c.Provider.Retry.MaxDelayMS = 10000
	}
	if c.Provider.Retry.Multiplier <= 0 {
		c.Provider.Retry.Multiplier = 2.0
	}
	if c.Resolver.MinResultsSearch <= 0 {
		c.Resolver.MinResultsSearch = 5
	}
	if c.Resolver.MinResultsAutocomplete <= 0 {
		c.Resolver.MinResultsAutocomplete = 3
	}
	if c.Resolver.DefaultLimit <= 0 {
		c.Resolver.DefaultLimit = 20
	}
	if c.Resolver.MaxLimit <= 0 {
		c.Resolver.MaxLimit = 50
	}
	if c.Resolver.RequestDeadlineSec <= 0 {
		c.Resolver.RequestDeadlineSec = 15
	}
	if c.Resolver.NegativeCacheTTLSec <= 0 {
		c.Resolver.NegativeCacheTTLSec = 6 * 3600
	}
	if c.Resolver.GeohashPrecision <= 0 {
		c.Resolver.GeohashPrecision = 7
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.DailyCallLimit < 0 {
		return fmt.Errorf("provider.daily_call_limit must not be negative, got %d", c.Provider.DailyCallLimit)
	}
	if c.Resolver.GeohashPrecision > 12 {
		return fmt.Errorf("resolver.geohash_precision must be at most 12, got %d", c.Resolver.GeohashPrecision)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
