package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// ServerConfig contains gRPC server settings
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Database string `yaml:"database" env:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
}

// StorageConfig selects the order store backend
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"` // "postgres" or "memory"
}

// JWTConfig contains JWT token settings. Tokens are minted by the auth service.
type JWTConfig struct {
	Secret            string `yaml:"secret" env:"JWT_SECRET"`
	Issuer            string `yaml:"issuer" env:"JWT_ISSUER"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes" env:"JWT_ACCESS_TOKEN_EXPIRY_MINUTES"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// LifecycleConfig holds the order lifecycle policy
type LifecycleConfig struct {
	AutoCompleteAfterHours int `yaml:"auto_complete_after_hours" env:"LIFECYCLE_AUTO_COMPLETE_AFTER_HOURS"`
	MilestoneHorizon       int `yaml:"milestone_horizon" env:"LIFECYCLE_MILESTONE_HORIZON"`
	PenaltyWindowDays      int `yaml:"penalty_window_days" env:"LIFECYCLE_PENALTY_WINDOW_DAYS"`
	PenaltyThreshold       int `yaml:"penalty_threshold" env:"LIFECYCLE_PENALTY_THRESHOLD"`
	ReviewGraceHours       int `yaml:"eligibility_review_grace_hours" env:"LIFECYCLE_REVIEW_GRACE_HOURS"`
	MaxTransitionAttempts  int `yaml:"max_transition_attempts" env:"LIFECYCLE_MAX_TRANSITION_ATTEMPTS"`
	SweepBatchSize         int `yaml:"sweep_batch_size" env:"LIFECYCLE_SWEEP_BATCH_SIZE"`
}

// SchedulerConfig contains cron schedule settings (with seconds)
type SchedulerConfig struct {
	SweepStaleReturns     string `yaml:"sweep_stale_returns" env:"SCHEDULE_SWEEP_STALE_RETURNS"`
	MarkOverdueMilestones string `yaml:"mark_overdue_milestones" env:"SCHEDULE_MARK_OVERDUE_MILESTONES"`
	RelayActivityLog      string `yaml:"relay_activity_log" env:"SCHEDULE_RELAY_ACTIVITY_LOG"`
	RelayBatchSize        int    `yaml:"relay_batch_size" env:"SCHEDULE_RELAY_BATCH_SIZE"`
	SweepLeaseSeconds     int    `yaml:"sweep_lease_seconds" env:"SCHEDULE_SWEEP_LEASE_SECONDS"`
}

// RedisConfig contains the sweep lease backend. An empty Addr selects the in-process lease.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// KafkaConfig contains the activity relay settings. No brokers disables the relay.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic    string   `yaml:"topic" env:"KAFKA_TOPIC"`
	ClientID string   `yaml:"client_id" env:"KAFKA_CLIENT_ID"`
}

// HTTPConfig contains the JSON API settings
type HTTPConfig struct {
	Port                  int     `yaml:"port" env:"HTTP_PORT"`
	RateLimitRPS          float64 `yaml:"rate_limit_rps" env:"HTTP_RATE_LIMIT_RPS"`
	RateLimitBurst        int     `yaml:"rate_limit_burst" env:"HTTP_RATE_LIMIT_BURST"`
	RateLimitIdleMinutes  int     `yaml:"rate_limit_idle_minutes" env:"HTTP_RATE_LIMIT_IDLE_MINUTES"`
	IdempotencyTTLMinutes int     `yaml:"idempotency_ttl_minutes" env:"HTTP_IDEMPOTENCY_TTL_MINUTES"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate fills defaults and checks the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Storage
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	switch c.Storage.Driver {
	case "postgres":
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
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	// JWT
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Lifecycle defaults
	l := &c.Lifecycle
	if l.AutoCompleteAfterHours == 0 {
		l.AutoCompleteAfterHours = 72
	}
	if l.MilestoneHorizon == 0 {
		l.MilestoneHorizon = 12
	}
	if l.PenaltyWindowDays == 0 {
		l.PenaltyWindowDays = 30
	}
	if l.PenaltyThreshold == 0 {
		l.PenaltyThreshold = 3
	}
	if l.ReviewGraceHours == 0 {
		l.ReviewGraceHours = 24
	}
	if l.MaxTransitionAttempts == 0 {
		l.MaxTransitionAttempts = 3
	}
	if l.SweepBatchSize == 0 {
		l.SweepBatchSize = 200
	}
	if l.AutoCompleteAfterHours < 0 || l.MilestoneHorizon < 0 || l.PenaltyWindowDays < 0 ||
		l.PenaltyThreshold < 0 || l.ReviewGraceHours < 0 || l.MaxTransitionAttempts < 0 || l.SweepBatchSize < 0 {
		return fmt.Errorf("lifecycle settings must not be negative")
	}

	// Scheduler defaults
	if c.Scheduler.SweepStaleReturns == "" {
		c.Scheduler.SweepStaleReturns = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.MarkOverdueMilestones == "" {
		c.Scheduler.MarkOverdueMilestones = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.RelayActivityLog == "" {
		c.Scheduler.RelayActivityLog = "*/15 * * * * *" // every 15 seconds
	}
	if c.Scheduler.RelayBatchSize == 0 {
		c.Scheduler.RelayBatchSize = 500
	}
	if c.Scheduler.SweepLeaseSeconds == 0 {
		c.Scheduler.SweepLeaseSeconds = 240
	}

	// Kafka
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "rental.order.activity"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "rentloop-backend"
	}

	// HTTP
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimitRPS == 0 {
		c.HTTP.RateLimitRPS = 10
	}
	if c.HTTP.RateLimitBurst == 0 {
		c.HTTP.RateLimitBurst = 20
	}
	if c.HTTP.RateLimitIdleMinutes == 0 {
		c.HTTP.RateLimitIdleMinutes = 10
	}
	if c.HTTP.IdempotencyTTLMinutes == 0 {
		c.HTTP.IdempotencyTTLMinutes = 60
	}

	return nil
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

// GetServerAddress returns the gRPC server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetHTTPAddress returns the JSON API address, or "" when the HTTP surface is disabled
func (c *Config) GetHTTPAddress() string {
	if c.HTTP.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.HTTP.Port)
}

// AutoCompleteAfter is the RETURN_PENDING timeout of the sweeper
func (l LifecycleConfig) AutoCompleteAfter() time.Duration {
	return time.Duration(l.AutoCompleteAfterHours) * time.Hour
}

func (l LifecycleConfig) PenaltyWindow() time.Duration {
	return time.Duration(l.PenaltyWindowDays) * 24 * time.Hour
}

func (l LifecycleConfig) ReviewGrace() time.Duration {
	return time.Duration(l.ReviewGraceHours) * time.Hour
}
