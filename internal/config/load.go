package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "OCR"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/docvault-ocr")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// OCR_WORKER_POLL_INTERVAL -> worker.poll_interval
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

// Validate checks struct tags and the backend-specific requirements.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch cfg.Store.Backend {
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("config validation failed: redis.addr is required for the redis backend")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("config validation failed: database.url is required for the postgres backend")
		}
	}
	return nil
}

// setDefaults registers a default for every key so that AutomaticEnv can
// bind the matching environment variable during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.embedded_workers", 0)

	v.SetDefault("store.backend", "redis")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.url", "")

	v.SetDefault("worker.count", 1)
	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.max_task_duration", 30*time.Minute)
	v.SetDefault("worker.stuck_check_interval", 5*time.Minute)
	v.SetDefault("worker.page_concurrency", 1)
	v.SetDefault("worker.stuck_alert_threshold", 10)
	v.SetDefault("worker.retention", 0)
	v.SetDefault("worker.janitor_interval", time.Hour)

	v.SetDefault("queue.max_depth", 0)

	v.SetDefault("result.ttl", 24*time.Hour)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.backoff", []time.Duration{time.Second, 5 * time.Second, 15 * time.Second})
	v.SetDefault("webhook.timeout", 30*time.Second)
	v.SetDefault("webhook.workers", 2)
	v.SetDefault("webhook.buffer", 256)

	v.SetDefault("storage.base_dir", "/var/lib/docvault-ocr")
	v.SetDefault("storage.max_upload_bytes", 50<<20)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("ocr.languages", []string{"en"})
	v.SetDefault("ocr.dpi", 300)
}
