// Package config loads sqcatalog settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SQCATALOG_DRIVER
const EnvPrefix = "SQCATALOG"

// Supported store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the runtime configuration of the CLI
type Config struct {
	Driver              string `mapstructure:"driver"`
	SQLitePath          string `mapstructure:"sqlite_path"`
	PostgresDSN         string `mapstructure:"postgres_dsn"`
	Debug               bool   `mapstructure:"debug"`
	AncestryParallelism int    `mapstructure:"ancestry_parallelism"`
	DefaultLimit        int    `mapstructure:"default_limit"`
}

var defaults = map[string]any{
	"driver":               DriverSQLite,
	"sqlite_path":          "catalog.db",
	"postgres_dsn":         "",
	"debug":                false,
	"ancestry_parallelism": 4,
	"default_limit":        0,
}

// Load reads envFile, if present, into the process environment and then
// builds the configuration from SQCATALOG_* variables. Variables already set
// take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the driver and its connection settings
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%s_SQLITE_PATH is required for the sqlite driver", EnvPrefix)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required for the postgres driver", EnvPrefix)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.AncestryParallelism < 1 {
		return fmt.Errorf("ancestry parallelism must be at least 1, got %d", c.AncestryParallelism)
	}
	if c.DefaultLimit < 0 {
		return fmt.Errorf("default limit must not be negative, got %d", c.DefaultLimit)
	}
	return nil
}
