package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. FORMRELAY_SERVER_PORT.
const EnvPrefix = "FORMRELAY"

var defaults = map[string]any{
	"server.port":      8080,
	"server.log_level": "info",
	"server.mode":      "all",

	"database.url":               "",
	"database.max_open_conns":    25,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "5m",

	"auth.jwt_secret":           "",
	"auth.token_encryption_key": "",

	"google.client_id":           "",
	"google.client_secret":       "",
	"google.token_url":           "https://oauth2.googleapis.com/token",
	"google.forms_endpoint":      "",
	"google.requests_per_second": 5.0,

	"worker.target_agent":         "executor",
	"worker.poll_interval":        "5s",
	"worker.batch_size":           10,
	"worker.max_attempts":         5,
	"worker.base_backoff_delay":   "2s",
	"worker.backoff_cap":          "5m",
	"worker.stale_task_threshold": "10m",
	"worker.sweep_interval":       "1m",
	"worker.lock_wait":            "30s",
	"worker.lock_ttl":             "15m",
	"worker.reply_to_source":      true,

	"telemetry.enabled":      false,
	"telemetry.service_name": "formrelay",
}

// Load configuration from environment variables and optionally config files.
// A .env file in the working directory is loaded first if present, then an
// optional config.yaml. Environment variables take precedence over values
// from config files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
