// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Admin    AdminConfig    `yaml:"admin"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the registry and billing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures the optional Redis price store. When disabled,
// feeds and rates live in the primary database.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig configures the optional smart-meter reading ingestion.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// OracleConfig configures the trust gate over external pricing data.
type OracleConfig struct {
	MaxAgeSeconds    int64 `yaml:"max_age_seconds"`
	MinReliability   int   `yaml:"min_reliability"`
	FallbackEnabled  bool  `yaml:"fallback_enabled"`
	CostLimitPerCall int64 `yaml:"cost_limit_per_call"`
	SlowCallMs       int64 `yaml:"slow_call_ms"`
}

// AdminConfig identifies the administrator.
type AdminConfig struct {
	// Address is the caller identity allowed to perform admin mutations.
	Address string `yaml:"address"`

	// TokenHash is the bcrypt hash of the HTTP admin bearer token.
	TokenHash string `yaml:"token_hash"`
}

// LedgerConfig configures asset settlement.
type LedgerConfig struct {
	Mode           string `yaml:"mode"` // "none" or "memory"
	HoldingAddress string `yaml:"holding_address"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	UTILIBILL_ADMIN_ADDRESS     - Administrator address (required)
//	UTILIBILL_DATABASE_DSN      - Database path (default: utilibill.db)
//	UTILIBILL_SERVER_HOST       - Server host (default: 0.0.0.0)
//	UTILIBILL_SERVER_PORT       - Server port (default: 8080)
//	UTILIBILL_REDIS_ADDR        - Redis address; enables the Redis price store
//	UTILIBILL_KAFKA_BROKERS     - Comma-separated brokers; enables reading ingestion
//	UTILIBILL_ORACLE_MAX_AGE    - Oracle staleness limit in seconds (default: 3600)
//	UTILIBILL_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	UTILIBILL_LOG_FORMAT        - Log format: json or console (default: json)
//	UTILIBILL_METRICS_ENABLED   - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables. This is the recommended method for Docker deployments.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("UTILIBILL_ADMIN_ADDRESS") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set UTILIBILL_ADMIN_ADDRESS")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("UTILIBILL_ADMIN_ADDRESS") != ""
}

// applyEnvOverrides applies UTILIBILL_* environment variables to the
// config. Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("UTILIBILL_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("UTILIBILL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("UTILIBILL_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("UTILIBILL_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("UTILIBILL_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("UTILIBILL_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Redis configuration
	if v := os.Getenv("UTILIBILL_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("UTILIBILL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("UTILIBILL_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	// Kafka configuration
	if v := os.Getenv("UTILIBILL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("UTILIBILL_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("UTILIBILL_KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}

	// Oracle configuration
	if v := os.Getenv("UTILIBILL_ORACLE_MAX_AGE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Oracle.MaxAgeSeconds = n
		}
	}
	if v := os.Getenv("UTILIBILL_ORACLE_MIN_RELIABILITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Oracle.MinReliability = n
		}
	}
	if v := os.Getenv("UTILIBILL_ORACLE_FALLBACK"); v != "" {
		cfg.Oracle.FallbackEnabled = parseBool(v)
	}

	// Admin configuration
	if v := os.Getenv("UTILIBILL_ADMIN_ADDRESS"); v != "" {
		cfg.Admin.Address = v
	}
	if v := os.Getenv("UTILIBILL_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Admin.TokenHash = v
	}

	// Ledger configuration
	if v := os.Getenv("UTILIBILL_LEDGER_MODE"); v != "" {
		cfg.Ledger.Mode = v
	}
	if v := os.Getenv("UTILIBILL_LEDGER_HOLDING_ADDRESS"); v != "" {
		cfg.Ledger.HoldingAddress = v
	}

	// Logging configuration
	if v := os.Getenv("UTILIBILL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("UTILIBILL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("UTILIBILL_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("UTILIBILL_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "utilibill.db"
	}

	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "meter-readings"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "utilibill"
	}

	if cfg.Oracle.MaxAgeSeconds == 0 {
		cfg.Oracle.MaxAgeSeconds = 3600
	}
	if cfg.Oracle.MinReliability == 0 {
		cfg.Oracle.MinReliability = 30
	}
	if cfg.Oracle.CostLimitPerCall == 0 {
		cfg.Oracle.CostLimitPerCall = 1_000_000
	}
	if cfg.Oracle.SlowCallMs == 0 {
		cfg.Oracle.SlowCallMs = 1000
	}

	if cfg.Ledger.Mode == "" {
		cfg.Ledger.Mode = "none"
	}
	if cfg.Ledger.HoldingAddress == "" {
		cfg.Ledger.HoldingAddress = "GHOLDING"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Admin.Address == "" {
		return fmt.Errorf("admin.address is required")
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	if cfg.Oracle.MaxAgeSeconds < 0 {
		return fmt.Errorf("oracle.max_age_seconds must not be negative")
	}
	if cfg.Oracle.MinReliability < 0 || cfg.Oracle.MinReliability > 100 {
		return fmt.Errorf("oracle.min_reliability must be in [0, 100], got %d", cfg.Oracle.MinReliability)
	}

	validLedgerModes := map[string]bool{"none": true, "memory": true}
	if !validLedgerModes[cfg.Ledger.Mode] {
		return fmt.Errorf("ledger.mode must be 'none' or 'memory', got %q", cfg.Ledger.Mode)
	}

	return nil
}
