package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the follow-up server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tiers     TiersConfig     `yaml:"tiers"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// DSN is a SQLite file path or a postgres:// URL.
	DSN string `yaml:"dsn"`
}

type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	Workers     int           `yaml:"workers"`
}

// RefreshConfig rate-limits on-demand worklist passes.
type RefreshConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// RedisConfig enables the shared worklist cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig enables contact ingest when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type TracingConfig struct {
	ServiceName string `yaml:"service_name"`
	// Endpoint is the OTLP HTTP collector host:port. Empty disables export.
	Endpoint string `yaml:"endpoint"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TiersConfig points at a CUE tier catalog. Empty uses the built-in one.
// The catalog seeds an empty registry on startup unless SkipSeed is set.
type TiersConfig struct {
	CatalogPath string `yaml:"catalog_path"`
	SkipSeed    bool   `yaml:"skip_seed"`
}

// LoadConfig reads path (optional when empty), applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	setDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "followup.db"
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 5 * time.Minute
	}
	if cfg.Scheduler.ScanTimeout == 0 {
		cfg.Scheduler.ScanTimeout = time.Minute
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 8
	}
	if cfg.Refresh.RatePerSecond == 0 {
		cfg.Refresh.RatePerSecond = 0.2
	}
	if cfg.Refresh.Burst == 0 {
		cfg.Refresh.Burst = 1
	}
	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "followup:worklist"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "customer-contacts"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "followup"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "followup"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		cfg.Tracing.Endpoint = ep
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Scheduler.Interval < time.Second {
		return errors.New("scheduler.interval must be at least 1s")
	}
	if c.Scheduler.ScanTimeout <= 0 {
		return errors.New("scheduler.scan_timeout must be positive")
	}
	if c.Scheduler.Workers < 1 {
		return errors.New("scheduler.workers must be positive")
	}
	if c.Refresh.RatePerSecond < 0 || c.Refresh.Burst < 1 {
		return errors.New("refresh.rate_per_second must be non-negative and refresh.burst positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
