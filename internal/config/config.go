// Package config loads service configuration from a YAML file with
// TASKPREDICT_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Model    ModelConfig    `mapstructure:"model"`
	Security SecurityConfig `mapstructure:"security"`
	// Tracing enables the stdout trace exporter.
	Tracing  bool   `mapstructure:"tracing"`
	LogLevel string `mapstructure:"log_level"`
	// Environment is "development" or "production"; development exposes
	// internal error causes in responses.
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ModelConfig struct {
	DefaultFamily string  `mapstructure:"default_family"`
	BootstrapSize int     `mapstructure:"bootstrap_size"`
	RetentionCap  int     `mapstructure:"retention_cap"`
	Alpha         float64 `mapstructure:"alpha"`
	Seed          uint64  `mapstructure:"seed"`
	// DataPath optionally points at a CSV training set used instead of the
	// synthetic bootstrap.
	DataPath string `mapstructure:"data_path"`
}

type SecurityConfig struct {
	APIKey    string  `mapstructure:"api_key"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Load reads the config file at path (optional) and applies environment
// overrides, e.g. TASKPREDICT_SERVER_PORT=9090.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TASKPREDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("storage.sqlite_path", "taskpredict.db")
	v.SetDefault("model.default_family", "random_forest")
	v.SetDefault("model.bootstrap_size", 500)
	v.SetDefault("model.retention_cap", 50000)
	v.SetDefault("model.alpha", 0.1)
	v.SetDefault("model.seed", 42)
	v.SetDefault("security.rate_limit", 50.0)
	v.SetDefault("security.rate_burst", 100)
	v.SetDefault("tracing", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Development reports whether the service runs in development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}
