package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/basinhq/basin/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (authz decision cache)
	Redis RedisConfig

	// Auth configuration (OIDC / Keycloak)
	Auth AuthConfig

	// Authz decision cache tuning
	Authz AuthzConfig

	// Observability configuration
	Observability ObservabilityConfig
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

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	PingTimeout  time.Duration
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// AuthConfig holds OIDC verification settings
type AuthConfig struct {
	IssuerURL string
	ClientID  string
	// AdminRole is the realm role that grants the admin flag on the caller.
	AdminRole string
}

// AuthzConfig locates the authorization oracle and tunes the decision cache
type AuthzConfig struct {
	// OracleURL is the base URL of the authorization oracle's HTTP API.
	OracleURL     string
	CacheEnabled  bool
	CacheTTL      time.Duration
	L1CacheSize   int
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("BASIN_HOST", "0.0.0.0"),
			Port:            getEnv("BASIN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("BASIN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("BASIN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("BASIN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("BASIN_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("BASIN_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("BASIN_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("BASIN_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("BASIN_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("BASIN_POSTGRES_CONN_LIFETIME", 30*time.Minute),
			PingTimeout:  getEnvDuration("BASIN_POSTGRES_PING_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:        getEnv("BASIN_REDIS_URL", ""),
			Password:   getEnv("BASIN_REDIS_PASSWORD", ""),
			DB:         getEnvInt("BASIN_REDIS_DB", 0),
			MaxRetries: getEnvInt("BASIN_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("BASIN_REDIS_POOL_SIZE", 10),
		},
		Auth: AuthConfig{
			IssuerURL: getEnv("BASIN_OIDC_ISSUER", ""),
			ClientID:  getEnv("BASIN_OIDC_CLIENT_ID", "basin"),
			AdminRole: getEnv("BASIN_ADMIN_ROLE", "renku-admin"),
		},
		Authz: AuthzConfig{
			OracleURL:     getEnv("BASIN_AUTHZ_ORACLE_URL", ""),
			CacheEnabled:  getEnvBool("BASIN_AUTHZ_CACHE_ENABLED", true),
			CacheTTL:      getEnvDuration("BASIN_AUTHZ_CACHE_TTL", 5*time.Minute),
			L1CacheSize:   getEnvInt("BASIN_AUTHZ_L1_CACHE_SIZE", 10000),
			SweepSchedule: getEnv("BASIN_AUTHZ_SWEEP_SCHEDULE", "@every 10m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("BASIN_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("BASIN_METRICS_ENABLED", true),
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
	if c.Authz.OracleURL == "" {
		return fmt.Errorf("authz oracle URL is required")
	}
	if c.Authz.CacheEnabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when the authz cache is enabled")
	}
	if c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("authz cache TTL must be positive")
	}
	if c.Authz.L1CacheSize <= 0 {
		return fmt.Errorf("authz L1 cache size must be positive")
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
