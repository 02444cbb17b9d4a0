// Package config loads Pulse configuration from a YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/luminlabs/pulse/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Queue     QueueConfig     `yaml:"queue"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Retention RetentionConfig `yaml:"retention"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection settings. Redis is optional: when Addr
// is empty, distributed locks fall back to PG advisory locks and realtime
// broadcast is disabled.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ScoringConfig holds engagement scoring parameters.
type ScoringConfig struct {
	// HalfLives maps a signal type to its decay half-life in days.
	// Types not listed use DefaultHalfLifeDays.
	HalfLives           map[string]float64    `yaml:"half_lives"`
	DefaultHalfLifeDays float64               `yaml:"default_half_life_days"`
	WindowDays          int                   `yaml:"window_days"`
	Tiers               domain.TierThresholds `yaml:"tiers"`
}

// QueueConfig holds job queue tuning.
type QueueConfig struct {
	// Concurrency overrides per lane; unlisted lanes use built-in defaults.
	Concurrency      map[string]int `yaml:"concurrency"`
	PollInterval     time.Duration  `yaml:"poll_interval"`
	RecoveryInterval time.Duration  `yaml:"recovery_interval"`
	StaleAge         time.Duration  `yaml:"stale_age"`
}

// WebhookConfig holds outbound delivery settings.
type WebhookConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RatePerMinute  int           `yaml:"rate_per_minute"` // per destination host
}

// SchedulerConfig holds repeatable-trigger intervals.
type SchedulerConfig struct {
	AnomalyScanInterval time.Duration `yaml:"anomaly_scan_interval"`
	AlertCheckInterval  time.Duration `yaml:"alert_check_interval"`
	RetentionInterval   time.Duration `yaml:"retention_interval"`
}

// RetentionConfig holds data-retention windows for the cleanup worker.
type RetentionConfig struct {
	CompletedJobAge    time.Duration `yaml:"completed_job_age"`
	DeadLetterAge      time.Duration `yaml:"dead_letter_age"`
	DeliveryAttemptAge time.Duration `yaml:"delivery_attempt_age"`
	DedupWindowAge     time.Duration `yaml:"dedup_window_age"`
}

// Load reads configuration from the given path (optional) and applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// Best-effort .env for local development
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Scoring: ScoringConfig{
			DefaultHalfLifeDays: 14,
			WindowDays:          90,
			Tiers:               domain.DefaultTierThresholds,
		},
		Queue: QueueConfig{
			PollInterval:     time.Second,
			RecoveryInterval: 2 * time.Minute,
			StaleAge:         5 * time.Minute,
		},
		Webhooks: WebhookConfig{
			RequestTimeout: 15 * time.Second,
			MaxAttempts:    3,
			RatePerMinute:  300,
		},
		Scheduler: SchedulerConfig{
			AnomalyScanInterval: time.Hour,
			AlertCheckInterval:  5 * time.Minute,
			RetentionInterval:   time.Hour,
		},
		Retention: RetentionConfig{
			CompletedJobAge:    24 * time.Hour,
			DeadLetterAge:      7 * 24 * time.Hour,
			DeliveryAttemptAge: 30 * 24 * time.Hour,
			DedupWindowAge:     48 * time.Hour,
		},
		LogLevel: "info",
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PULSE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
