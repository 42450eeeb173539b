// Package config loads runtime configuration from HEARTH_* environment
// variables and an optional config file, and validates it before the
// runtime is allowed to start.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage backends.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the validated runtime configuration.
type Config struct {
	Environment string `mapstructure:"environment"`

	ListenAddr string `mapstructure:"listen_addr"`

	StorageBackend string `mapstructure:"storage_backend"`
	StorageDSN     string `mapstructure:"storage_dsn"`

	PluginsDir string `mapstructure:"plugins_dir"`

	RateLimitEnabled bool          `mapstructure:"rate_limit_enabled"`
	RateLimitAuth    int           `mapstructure:"rate_limit_auth"`
	RateLimitAPI     int           `mapstructure:"rate_limit_api"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	CookieSecure bool `mapstructure:"cookie_secure"`

	LogFormat string `mapstructure:"log_format"` // json or text
	LogLevel  string `mapstructure:"log_level"`

	ServiceCallTimeout time.Duration `mapstructure:"service_call_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`

	RequestLogCapacity int `mapstructure:"request_log_capacity"`
}

// Load reads configuration from the environment (prefix HEARTH_) and an
// optional config file path, applies defaults, and validates.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HEARTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("storage_backend", StorageSQLite)
	v.SetDefault("storage_dsn", "hearthd.db")
	v.SetDefault("plugins_dir", "plugins")
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("rate_limit_auth", 10)
	v.SetDefault("rate_limit_api", 1000)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("cookie_secure", false)
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_call_timeout", 30*time.Second)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("request_log_capacity", 1000)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate refuses configurations the runtime cannot honor.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("%w: environment must be %s or %s, got %q",
			errs.ErrInvalidInput, EnvDevelopment, EnvProduction, c.Environment)
	}

	switch c.StorageBackend {
	case StorageSQLite, StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", errs.ErrInvalidInput, c.StorageBackend)
	}
	if c.StorageBackend != StorageMemory && c.StorageDSN == "" {
		return fmt.Errorf("%w: storage backend %s requires a DSN", errs.ErrInvalidInput, c.StorageBackend)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format must be json or text, got %q", errs.ErrInvalidInput, c.LogFormat)
	}

	if c.RateLimitEnabled && (c.RateLimitAuth <= 0 || c.RateLimitAPI <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("%w: rate limit thresholds must be positive when enabled", errs.ErrInvalidInput)
	}

	if c.ServiceCallTimeout < 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", errs.ErrInvalidInput)
	}

	if c.Environment == EnvProduction && !c.CookieSecure {
		return fmt.Errorf("%w: production requires secure cookies", errs.ErrInvalidInput)
	}

	return nil
}

// IsProduction reports whether the runtime runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
