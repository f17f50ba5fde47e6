package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Search    SearchConfig    `mapstructure:"search"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SearchConfig holds upstream search configuration.
type SearchConfig struct {
	// DefaultInstances is the static fallback list used when no registered
	// instance is healthy.
	DefaultInstances []string `mapstructure:"default_instances"`
	// AttemptTimeout bounds a single upstream attempt.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// MaxAttempts bounds instance failover within one request.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RegistryRefreshInterval controls how often the instance registry
	// reloads from the database.
	RegistryRefreshInterval time.Duration `mapstructure:"registry_refresh_interval"`
	// HealthCheckInterval controls the background instance prober.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	// HealthSnapshotTTL bounds staleness of the cached registry snapshot.
	HealthSnapshotTTL time.Duration `mapstructure:"health_snapshot_ttl"`
}

// RateLimitConfig holds per-account rate limit configuration.
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
	// Backend selects "memory" (single process) or "redis".
	Backend string `mapstructure:"backend"`
}

// PaymentConfig holds payment processor configuration.
type PaymentConfig struct {
	StripeAPIKey        string `mapstructure:"stripe_api_key"`
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`
}

// AuthConfig holds credential resolution configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// UsageConfig holds usage record retention configuration.
type UsageConfig struct {
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/searchgate")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("SEARCHGATE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("SEARCHGATE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("SEARCHGATE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("SEARCHGATE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("SEARCHGATE_STRIPE_API_KEY"); key != "" {
		cfg.Payment.StripeAPIKey = key
	}
	if secret := os.Getenv("SEARCHGATE_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payment.StripeWebhookSecret = secret
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "searchgate")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Search defaults
	v.SetDefault("search.default_instances", []string{"https://searx.be", "https://search.sapti.me"})
	v.SetDefault("search.attempt_timeout", 10*time.Second)
	v.SetDefault("search.max_attempts", 3)
	v.SetDefault("search.registry_refresh_interval", time.Minute)
	v.SetDefault("search.health_check_interval", 30*time.Second)
	v.SetDefault("search.health_snapshot_ttl", 5*time.Minute)

	// Rate limit defaults
	v.SetDefault("rate_limit.limit", 6000)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.backend", "memory")

	// Usage defaults
	v.SetDefault("usage.retention_period", 90*24*time.Hour)
	v.SetDefault("usage.sweep_interval", 12*time.Hour)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
