package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Events    EventsConfig    `yaml:"events"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	RateLimitRPS   int    `yaml:"rate_limit_rps"` // per organization, 0 disables
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

type StoreConfig struct {
	Type string `yaml:"type"` // "postgres" or "memory"
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// JWTConfig contains bearer token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LedgerConfig tunes the credit ledger service
type LedgerConfig struct {
	MaxAttempts            int              `yaml:"max_attempts"`
	RetryInitialIntervalMs int              `yaml:"retry_initial_interval_ms"`
	RetryMaxIntervalMs     int              `yaml:"retry_max_interval_ms"`
	HistoryDefaultLimit    int              `yaml:"history_default_limit"`
	HistoryMaxLimit        int              `yaml:"history_max_limit"`
	SignupGrants           map[string]int64 `yaml:"signup_grants"` // plan tier -> initial credits
}

// EventsConfig contains broker settings. No brokers means events are dropped.
type EventsConfig struct {
	KafkaBrokers     []string `yaml:"kafka_brokers"`
	Topic            string   `yaml:"topic"`
	Workers          int      `yaml:"workers"`            // delivery goroutines, events of one org share one
	QueueSize        int      `yaml:"queue_size"`         // per worker; a full queue drops the event
	PublishTimeoutMs int      `yaml:"publish_timeout_ms"` // per broker write
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReconcileBalances string `yaml:"reconcile_balances"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying env overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}
	if val := os.Getenv("STORE_TYPE"); val != "" {
		c.Store.Type = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Events
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Events.KafkaBrokers = strings.Split(val, ",")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must not be negative: %d", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = c.Server.RateLimitRPS
	}

	if c.Store.Type == "" {
		c.Store.Type = StoreTypePostgres
	}
	switch c.Store.Type {
	case StoreTypePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case StoreTypeMemory:
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "creatoros-auth"
	}

	// Ledger defaults
	if c.Ledger.MaxAttempts == 0 {
		c.Ledger.MaxAttempts = 3
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("ledger max attempts must be positive: %d", c.Ledger.MaxAttempts)
	}
	if c.Ledger.RetryInitialIntervalMs == 0 {
		c.Ledger.RetryInitialIntervalMs = 10
	}
	if c.Ledger.RetryMaxIntervalMs == 0 {
		c.Ledger.RetryMaxIntervalMs = 100
	}
	if c.Ledger.HistoryDefaultLimit == 0 {
		c.Ledger.HistoryDefaultLimit = 20
	}
	if c.Ledger.HistoryMaxLimit == 0 {
		c.Ledger.HistoryMaxLimit = 100
	}
	if c.Ledger.HistoryDefaultLimit > c.Ledger.HistoryMaxLimit {
		return fmt.Errorf("history default limit %d exceeds max limit %d", c.Ledger.HistoryDefaultLimit, c.Ledger.HistoryMaxLimit)
	}
	if c.Ledger.SignupGrants == nil {
		c.Ledger.SignupGrants = DefaultSignupGrants()
	}
	for tier, credits := range c.Ledger.SignupGrants {
		if credits < 0 {
			return fmt.Errorf("signup grant for %s must not be negative", tier)
		}
	}

	if c.Events.Topic == "" {
		c.Events.Topic = "ledger.entries"
	}
	if c.Events.Workers == 0 {
		c.Events.Workers = 4
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = 1024
	}
	if c.Events.PublishTimeoutMs == 0 {
		c.Events.PublishTimeoutMs = 5000
	}
	if c.Events.Workers < 0 || c.Events.QueueSize < 0 || c.Events.PublishTimeoutMs < 0 {
		return fmt.Errorf("event publisher settings must not be negative")
	}

	// Scheduler defaults
	if c.Scheduler.ReconcileBalances == "" {
		c.Scheduler.ReconcileBalances = "0 */15 * * * *" // every 15 minutes
	}

	return nil
}

// DefaultSignupGrants returns the initial credits granted per plan tier.
func DefaultSignupGrants() map[string]int64 {
	return map[string]int64{
		"free":    100,
		"creator": 1000,
		"pro":     5000,
		"agency":  20000,
	}
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
