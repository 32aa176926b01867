package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quillnote/quill/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Access        AccessConfig
	Observability ObservabilityConfig
	Janitor       JanitorConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds Redis configuration for distributed rate limiting.
// Disabled (empty URL) falls back to the in-memory limiter.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthConfig holds API token settings
type AuthConfig struct {
	// TokenTTL of zero issues non-expiring tokens.
	TokenTTL time.Duration
}

// AccessConfig holds authorization engine settings
type AccessConfig struct {
	// TopicAccessLevels opens non-private topics to every participant.
	TopicAccessLevels bool
	// TopicUserGrants honors per-user topic read grants.
	TopicUserGrants bool

	// Resolver binding cache; size 0 disables it.
	CacheSize int
	CacheTTL  time.Duration
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	AuditEnabled   bool
}

// JanitorConfig holds background cleanup settings
type JanitorConfig struct {
	// TokenPurgeSchedule is a cron expression.
	TokenPurgeSchedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("QUILL_HOST", "0.0.0.0"),
			Port:            getEnv("QUILL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("QUILL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("QUILL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("QUILL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("QUILL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("QUILL_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("QUILL_POSTGRES_URL", ""),
			ReplicaURLs: getEnv("QUILL_POSTGRES_REPLICA_URLS", ""),
			MaxConns:    getEnvInt("QUILL_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("QUILL_POSTGRES_MIN_CONNS", 5),
			Timeout:     getEnvDuration("QUILL_POSTGRES_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("QUILL_REDIS_URL", ""),
			Password: getEnv("QUILL_REDIS_PASSWORD", ""),
			DB:       getEnvInt("QUILL_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenTTL: getEnvDuration("QUILL_TOKEN_TTL", 30*24*time.Hour),
		},
		Access: AccessConfig{
			TopicAccessLevels: getEnvBool("QUILL_TOPIC_ACCESS_LEVELS", true),
			TopicUserGrants:   getEnvBool("QUILL_TOPIC_USER_GRANTS", false),
			CacheSize:         getEnvInt("QUILL_RESOLVER_CACHE_SIZE", 4096),
			CacheTTL:          getEnvDuration("QUILL_RESOLVER_CACHE_TTL", time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("QUILL_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("QUILL_METRICS_ENABLED", true),
			AuditEnabled:   getEnvBool("QUILL_AUDIT_ENABLED", true),
		},
		Janitor: JanitorConfig{
			TokenPurgeSchedule: getEnv("QUILL_TOKEN_PURGE_SCHEDULE", "@hourly"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("token TTL cannot be negative")
	}
	if c.Access.CacheSize < 0 {
		return fmt.Errorf("resolver cache size cannot be negative")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
