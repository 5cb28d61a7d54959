// Package config loads storekit settings from an optional YAML file and
// STOREKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: STOREKIT_DRIVER,
// STOREKIT_LOG_LEVEL and so on.
const EnvPrefix = "STOREKIT"

// Config selects and tunes a backend.
type Config struct {
	Driver           string `mapstructure:"driver" validate:"required,oneof=sqlite postgres mysql mongodb"`
	DSN              string `mapstructure:"dsn" validate:"required"`
	Database         string `mapstructure:"database" validate:"required_if=Driver mongodb"`
	SoftDeleteColumn string `mapstructure:"soft_delete_column"`
	StatementCache   int    `mapstructure:"statement_cache" validate:"gte=0"`
	Log              Log    `mapstructure:"log"`
}

// Log configures the logger.
type Log struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

func newViper() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("driver", "sqlite")
	vi.SetDefault("dsn", "storekit.db")
	vi.SetDefault("database", "")
	vi.SetDefault("soft_delete_column", "is_deleted")
	vi.SetDefault("statement_cache", 256)
	vi.SetDefault("log.json", false)
	vi.SetDefault("log.level", "info")

	vi.SetEnvPrefix(EnvPrefix)
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()
	return vi
}

// Load reads path, when non-empty, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	vi := newViper()
	if path != "" {
		vi.SetConfigFile(path)
		if err := vi.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := vi.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New()

// Validate checks field constraints and reports the first violations by
// config key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, len(fields))
	for i, fe := range fields {
		msgs[i] = fmt.Sprintf("%s failed %s", keyOf(fe.Namespace()), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

var keys = map[string]string{
	"Config.Driver":           "driver",
	"Config.DSN":              "dsn",
	"Config.Database":         "database",
	"Config.SoftDeleteColumn": "soft_delete_column",
	"Config.StatementCache":   "statement_cache",
	"Config.Log.JSON":         "log.json",
	"Config.Log.Level":        "log.level",
}

func keyOf(ns string) string {
	if k, ok := keys[ns]; ok {
		return k
	}
	return ns
}
