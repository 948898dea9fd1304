package config

import "time"

// Config holds all service configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Result   ResultConfig   `mapstructure:"result" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	OCR      OCRConfig      `mapstructure:"ocr" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// EmbeddedWorkers runs a worker pool inside the API process when > 0.
	EmbeddedWorkers int `mapstructure:"embedded_workers" validate:"gte=0"`
}

// StoreConfig selects the shared task store and queue backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=redis postgres"`
}

// RedisConfig contains the Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// DatabaseConfig contains the Postgres connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// WorkerConfig controls the worker loop and its watchdogs.
type WorkerConfig struct {
	Count              int           `mapstructure:"count" validate:"gte=1"`
	PollInterval       time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0"`
	MaxTaskDuration    time.Duration `mapstructure:"max_task_duration" validate:"gt=0"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"gt=0"`
	PageConcurrency    int           `mapstructure:"page_concurrency" validate:"gte=1"`
	// StuckAlertThreshold is the stuck task count above which the monitor
	// warns. Zero disables the warning.
	StuckAlertThreshold int `mapstructure:"stuck_alert_threshold" validate:"gte=0"`
	// Retention is how long terminal task metadata is kept. Zero keeps it forever.
	Retention       time.Duration `mapstructure:"retention" validate:"gte=0"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gt=0"`
}

// QueueConfig contains queue admission settings.
type QueueConfig struct {
	// MaxDepth caps the number of queued ids across all tiers. Zero is unbounded.
	MaxDepth int64 `mapstructure:"max_depth" validate:"gte=0"`
}

// ResultConfig contains result retention settings.
type ResultConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// WebhookConfig contains callback delivery settings.
type WebhookConfig struct {
	URL        string          `mapstructure:"url" validate:"omitempty,url"`
	Secret     string          `mapstructure:"secret" validate:"required_with=URL"`
	MaxRetries int             `mapstructure:"max_retries" validate:"gte=0"`
	Backoff    []time.Duration `mapstructure:"backoff" validate:"dive,gte=0"`
	Timeout    time.Duration   `mapstructure:"timeout" validate:"gt=0"`
	Workers    int             `mapstructure:"workers" validate:"gte=1"`
	Buffer     int             `mapstructure:"buffer" validate:"gte=1"`
}

// StorageConfig contains the per-task file storage settings.
type StorageConfig struct {
	BaseDir        string `mapstructure:"base_dir" validate:"required"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// OCRConfig contains recognition settings.
type OCRConfig struct {
	Languages []string `mapstructure:"languages" validate:"required,min=1,dive,required"`
	DPI       int      `mapstructure:"dpi" validate:"gte=72,lte=1200"`
}
