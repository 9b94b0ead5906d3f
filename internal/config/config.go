package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	Port                   string
	StoreDriver            string
	DatabaseURL            string
	SQLitePath             string
	MigrationsDir          string
	RedisURL               string
	NumWorkers             int
	AutoDispatch           bool
	DeliveryTimeout        time.Duration
	DispatchMaxParallel    int
	TriggerRateLimit       int
	HealthFailureThreshold int
	LogLevel               string
	OTLPEndpoint           string
	ServiceName            string
	TraceSampleRatio       float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "eventhooks.db")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("NUM_WORKERS", 10)
	v.SetDefault("AUTO_DISPATCH", true)
	v.SetDefault("DELIVERY_TIMEOUT", 10*time.Second)
	v.SetDefault("DISPATCH_MAX_PARALLEL", 0)
	v.SetDefault("TRIGGER_RATE_LIMIT", 0)
	v.SetDefault("HEALTH_FAILURE_THRESHOLD", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_SERVICE_NAME", "eventhooks")
	v.SetDefault("TRACE_SAMPLE_RATIO", 1.0)

	cfg := &Config{
		Port:                   v.GetString("PORT"),
		StoreDriver:            v.GetString("STORE_DRIVER"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		SQLitePath:             v.GetString("SQLITE_PATH"),
		MigrationsDir:          v.GetString("MIGRATIONS_DIR"),
		RedisURL:               v.GetString("REDIS_URL"),
		NumWorkers:             v.GetInt("NUM_WORKERS"),
		AutoDispatch:           v.GetBool("AUTO_DISPATCH"),
		DeliveryTimeout:        v.GetDuration("DELIVERY_TIMEOUT"),
		DispatchMaxParallel:    v.GetInt("DISPATCH_MAX_PARALLEL"),
		TriggerRateLimit:       v.GetInt("TRIGGER_RATE_LIMIT"),
		HealthFailureThreshold: v.GetInt("HEALTH_FAILURE_THRESHOLD"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		OTLPEndpoint:           v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:            v.GetString("OTEL_SERVICE_NAME"),
		TraceSampleRatio:       v.GetFloat64("TRACE_SAMPLE_RATIO"),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.DeliveryTimeout <= 0 {
		return nil, fmt.Errorf("DELIVERY_TIMEOUT must be positive")
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		return nil, fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1")
	}
	if cfg.HealthFailureThreshold <= 0 {
		cfg.HealthFailureThreshold = 5
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
